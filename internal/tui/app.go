package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/qforge/internal/orchestrator"
	"github.com/ShayCichocki/qforge/pkg/models"
)

// Row states shown in the task table. They extend models.TaskStatus with the
// transient retrying and queued states that only exist as events.
const (
	statePending   = "pending"
	stateRunning   = "running"
	stateRetrying  = "retrying"
	stateCompleted = "completed"
	stateFailed    = "failed"
	stateBlocked   = "blocked"
	stateQueued    = "queued"
)

// maxLogLines bounds the activity log.
const maxLogLines = 8

// EventMsg wraps an orchestrator event for the TUI.
type EventMsg struct {
	Event orchestrator.Event
}

// WorkflowDoneMsg signals that the workflow reached a terminal status.
type WorkflowDoneMsg struct {
	Report orchestrator.StatusReport
	Err    error
}

// LogEntry is a line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// taskRow is the view state of one task.
type taskRow struct {
	id       string
	taskType models.TaskType
	state    string
	worker   string
	attempt  int
	tokens   int64
	duration time.Duration
	detail   string
}

// App is the bubbletea model for the live workflow view.
type App struct {
	workflowID string
	strategy   string

	rows  []*taskRow
	index map[string]*taskRow
	logs  []LogEntry

	header   *Header
	spinner  spinner.Model
	progress progress.Model

	width    int
	height   int
	quitting bool

	done    bool
	success bool
	message string
}

// New creates an App showing the given tasks in submission order.
func New(workflowID string, tasks []*models.Task) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusRunning

	a := &App{
		workflowID: workflowID,
		index:      make(map[string]*taskRow, len(tasks)),
		header:     NewHeader(),
		spinner:    sp,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		a.row(t.ID).taskType = t.Type
	}
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.header.SetWidth(msg.Width)
		if w := msg.Width - 20; w > 10 {
			a.progress.Width = w
		}

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.handleEvent(msg.Event)

	case WorkflowDoneMsg:
		a.done = true
		switch {
		case msg.Err != nil:
			a.success = false
			a.message = msg.Err.Error()
		default:
			a.success = msg.Report.Status == models.WorkflowStatusCompleted
			a.message = fmt.Sprintf("workflow %s %s in %s",
				msg.Report.WorkflowID, msg.Report.Status, msg.Report.Elapsed.Round(time.Millisecond))
		}
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(a.header.View(a.workflowID, a.strategyLabel()))
	b.WriteString("\n")
	b.WriteString(a.viewProgress())
	b.WriteString("\n\n")
	b.WriteString(panelStyle.Render(a.viewTasks()))
	b.WriteString("\n")
	b.WriteString(a.viewLogs())
	b.WriteString("\n")
	b.WriteString(a.viewFooter())
	return b.String()
}

// Progress returns the fraction of tasks that reached a terminal state.
func (a *App) Progress() float64 {
	if len(a.rows) == 0 {
		return 0
	}
	settled := 0
	for _, r := range a.rows {
		switch r.state {
		case stateCompleted, stateFailed, stateBlocked:
			settled++
		}
	}
	return float64(settled) / float64(len(a.rows))
}

// Done reports whether the workflow finished.
func (a *App) Done() bool { return a.done }

// Success reports whether the finished workflow completed every task.
func (a *App) Success() bool { return a.success }

// TaskState returns the displayed state of a task, or "" if unknown.
func (a *App) TaskState(id string) string {
	if r, ok := a.index[id]; ok {
		return r.state
	}
	return ""
}

// Logs returns the activity log.
func (a *App) Logs() []LogEntry { return a.logs }

func (a *App) strategyLabel() string {
	if a.strategy == "" {
		return "waiting"
	}
	return a.strategy
}

func (a *App) viewProgress() string {
	prefix := a.spinner.View()
	if a.done {
		if a.success {
			prefix = statusDone.Render("✓")
		} else {
			prefix = statusFailed.Render("✗")
		}
	}
	return fmt.Sprintf("%s %s %s", prefix, a.progress.ViewAs(a.Progress()),
		labelStyle.Render(fmt.Sprintf("%d tasks", len(a.rows))))
}

func (a *App) viewTasks() string {
	if len(a.rows) == 0 {
		return "No tasks"
	}

	lines := make([]string, 0, len(a.rows))
	for _, r := range a.rows {
		line := fmt.Sprintf("%-20s %-14s %s",
			idStyle.Render(r.id),
			labelStyle.Render(string(r.taskType)),
			statusStyle(r.state).Render(fmt.Sprintf("%-10s", r.state)))
		if r.worker != "" {
			line += labelStyle.Render(" worker ") + r.worker
		}
		if r.attempt > 1 {
			line += labelStyle.Render(fmt.Sprintf(" attempt %d", r.attempt))
		}
		if r.tokens > 0 {
			line += labelStyle.Render(fmt.Sprintf(" %d tok", r.tokens))
		}
		if r.duration > 0 {
			line += labelStyle.Render(" " + r.duration.Round(time.Millisecond).String())
		}
		if r.detail != "" {
			line += " " + statusStyle(r.state).Render(r.detail)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (a *App) viewLogs() string {
	if len(a.logs) == 0 {
		return labelStyle.Render("No activity yet")
	}

	var b strings.Builder
	for _, entry := range a.logs {
		ts := entry.Timestamp.Format("15:04:05")
		line := fmt.Sprintf("  %s [%s] %s", ts, entry.Level, entry.Message)
		if entry.Level == "ERROR" {
			line = statusFailed.Render(line)
		} else {
			line = labelStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) viewFooter() string {
	if a.done {
		if a.success {
			return statusDone.Render("✓ "+a.message) + " | Press q to exit"
		}
		return statusFailed.Render("✗ "+a.message) + " | Press q to exit"
	}
	return labelStyle.Render("q to quit")
}

// handleEvent applies an orchestrator event to the view state.
func (a *App) handleEvent(ev orchestrator.Event) {
	if a.workflowID != "" && ev.WorkflowID != "" && ev.WorkflowID != a.workflowID {
		return
	}

	switch ev.Type {
	case orchestrator.EventWorkflowStarted:
		a.strategy = ev.Strategy

	case orchestrator.EventTaskStarted:
		r := a.row(ev.TaskID)
		r.state = stateRunning
		r.worker = ev.WorkerID
		r.attempt = ev.Attempt
		r.detail = ""

	case orchestrator.EventTaskRetry:
		r := a.row(ev.TaskID)
		r.state = stateRetrying
		r.attempt = ev.Attempt
		r.detail = ev.Error

	case orchestrator.EventTaskCompleted:
		r := a.row(ev.TaskID)
		r.state = stateCompleted
		r.worker = ev.WorkerID
		r.tokens = ev.TokensUsed
		r.duration = ev.Duration
		r.detail = ""

	case orchestrator.EventTaskFailed:
		r := a.row(ev.TaskID)
		r.state = stateFailed
		r.detail = ev.Error

	case orchestrator.EventTaskBlocked:
		r := a.row(ev.TaskID)
		r.state = stateBlocked
		r.detail = ev.Message

	case orchestrator.EventTaskQueued:
		r := a.row(ev.TaskID)
		r.state = stateQueued
		r.detail = ev.Message

	case orchestrator.EventWorkflowFinished:
		a.done = true
		a.success = ev.Status == string(models.WorkflowStatusCompleted)
		if a.message == "" {
			a.message = fmt.Sprintf("workflow %s %s", a.workflowID, ev.Status)
		}
	}

	a.appendLog(ev)
}

func (a *App) appendLog(ev orchestrator.Event) {
	level := "INFO"
	if ev.Error != "" {
		level = "ERROR"
	}
	msg := string(ev.Type)
	if ev.TaskID != "" {
		msg += " " + ev.TaskID
	}
	if ev.Message != "" {
		msg += ": " + ev.Message
	} else if ev.Error != "" {
		msg += ": " + ev.Error
	}

	a.logs = append(a.logs, LogEntry{Timestamp: ev.Timestamp, Level: level, Message: msg})
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
}

// row finds a task row by ID or creates a pending one.
func (a *App) row(id string) *taskRow {
	if r, ok := a.index[id]; ok {
		return r
	}
	r := &taskRow{id: id, state: statePending}
	a.rows = append(a.rows, r)
	a.index[id] = r
	return r
}

// NewProgram creates a bubbletea program for the live view, redrawing at
// most once per refresh interval (zero keeps the bubbletea default).
// The returned program can receive messages via Send().
func NewProgram(workflowID string, tasks []*models.Task, refresh time.Duration) (*tea.Program, *App) {
	app := New(workflowID, tasks)
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if refresh > 0 {
		opts = append(opts, tea.WithFPS(int(time.Second/refresh)))
	}
	p := tea.NewProgram(app, opts...)
	return p, app
}

// Forward converts orchestrator events to TUI messages until the channel closes.
func Forward(program *tea.Program, events <-chan orchestrator.Event) {
	for ev := range events {
		program.Send(EventMsg{Event: ev})
	}
}
