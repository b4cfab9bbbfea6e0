package tui

import "github.com/charmbracelet/lipgloss"

var (
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true)
	statusDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("28"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusPending = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statusPaused  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	idStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// statusStyle picks the color for a task row state.
func statusStyle(state string) lipgloss.Style {
	switch state {
	case stateRunning, stateRetrying:
		return statusRunning
	case stateCompleted:
		return statusDone
	case stateFailed:
		return statusFailed
	case stateBlocked, stateQueued:
		return statusPaused
	default:
		return statusPending
	}
}
