package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Header renders the qforge title bar.
type Header struct {
	width int
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{
		width: 80,
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header.
func (h *Header) View(workflowID, strategy string) string {
	// Gradient colors for the logo
	colors := []string{"#FF6B6B", "#FFC857", "#4ECDC4", "#45B7D1", "#96E6A1"}

	var letters []string
	for i, r := range "qforge" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i%len(colors)])).Bold(true)
		letters = append(letters, style.Render(string(r)))
	}
	logo := lipgloss.JoinHorizontal(lipgloss.Top, letters...)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render("workflow " + workflowID + " · " + strategy)

	return lipgloss.NewStyle().
		Width(h.width).
		PaddingBottom(1).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, logo, "  ", subtitle))
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 2 // title + padding
}
