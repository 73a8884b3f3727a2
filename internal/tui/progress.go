package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hlsup/internal/resolve"
)

const tickInterval = 150 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Column widths of the step table.
const (
	stepWidth   = 28
	statusWidth = 9
	detailWidth = 48
)

type tickMsg time.Time

type step struct {
	state  resolve.State
	status string
	detail string
}

// ResolutionModel shows one line per resolution step, fallback warnings
// beneath them, and the activity of the running step at the bottom.
type ResolutionModel struct {
	title    string
	steps    []step
	warnings []string

	activity string
	percent  float64
	spin     int

	finished bool
	err      error

	cancel     func()
	cancelling bool
}

// NewResolutionModel starts with every step pending.
func NewResolutionModel(title string) ResolutionModel {
	m := ResolutionModel{title: title, percent: -1}
	for _, s := range resolve.Steps {
		m.steps = append(m.steps, step{state: s, status: StatusPending})
	}
	return m
}

// OnInterrupt registers fn to run the first time the user presses ctrl+c.
func (m *ResolutionModel) OnInterrupt(fn func()) {
	m.cancel = fn
}

func nextTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m ResolutionModel) Init() tea.Cmd {
	return nextTick()
}

// Update implements tea.Model.
func (m ResolutionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.spin++
		if m.finished {
			return m, nil
		}
		return m, nextTick()
	case StepMsg:
		if s := m.find(msg.State); s != nil {
			s.status, s.detail = msg.Status, msg.Detail
		}
	case settleMsg:
		for i := range m.steps {
			if m.steps[i].status == StatusPending {
				m.steps[i].status = StatusSkipped
			}
		}
	case WarningMsg:
		m.warnings = append(m.warnings, string(msg))
	case ActivityMsg:
		m.activity, m.percent = formatActivity(msg.Title, msg.Message), msg.Percent
	case WorkDoneMsg:
		m.finished = true
		return m, tea.Quit
	case ErrorMsg:
		m.finished, m.err = true, msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() != "ctrl+c" {
			break
		}
		if m.cancel == nil {
			m.finished = true
			return m, tea.Quit
		}
		// Keep running until the work reports back with WorkDoneMsg or ErrorMsg.
		if !m.cancelling {
			m.cancelling = true
			m.activity = "cancelling..."
			m.cancel()
		}
	}
	return m, nil
}

func (m *ResolutionModel) find(state resolve.State) *step {
	for i := range m.steps {
		if m.steps[i].state == state {
			return &m.steps[i]
		}
	}
	return nil
}

// View implements tea.Model.
func (m ResolutionModel) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(TitleStyle.Render(m.title) + "\n\n")
	}

	b.WriteString(tableLine(HeaderStyle, HeaderStyle, "STEP", "STATUS", "DETAIL"))
	for _, s := range m.steps {
		b.WriteString(tableLine(lipgloss.NewStyle(), StatusStyle(s.status), s.state.String(), s.status, s.detail))
	}
	for _, w := range m.warnings {
		b.WriteString(WarningStyle.Render("warning: "+w) + "\n")
	}

	if m.finished {
		if m.err != nil {
			fmt.Fprintf(&b, "\n%s\n", StatusStyle(StatusError).Render("Error: "+m.err.Error()))
		}
		return b.String()
	}

	settled := m.settled()
	fmt.Fprintf(&b, "\n%s [%d/%d]", spinnerFrames[m.spin%len(spinnerFrames)], settled, len(m.steps))
	if m.activity != "" {
		b.WriteString("  " + ActivityStyle.Render(m.activity))
	}
	if m.percent >= 0 {
		fmt.Fprintf(&b, " %3.0f%%", m.percent)
	}
	return b.String() + "\n"
}

func tableLine(base, status lipgloss.Style, name, state, detail string) string {
	return base.Width(stepWidth).Render(clip(name, stepWidth-1)) +
		status.Width(statusWidth).Render(state) + " " +
		base.Render(clip(detail, detailWidth)) + "\n"
}

// settled counts steps that are no longer pending or running.
func (m ResolutionModel) settled() int {
	n := 0
	for _, s := range m.steps {
		if s.status != StatusPending && s.status != StatusRunning {
			n++
		}
	}
	return n
}

// Done reports whether the work has ended or the user quit.
func (m ResolutionModel) Done() bool { return m.finished }

// Err is the error the work ended with.
func (m ResolutionModel) Err() error { return m.err }

func formatActivity(title, message string) string {
	if title == "" || message == "" {
		return title + message
	}
	return title + ": " + message
}

// OrDash renders an empty cell as "-".
func OrDash(value string) string {
	if value = strings.TrimSpace(value); value == "" {
		return "-"
	}
	return value
}

func clip(value string, width int) string {
	value = strings.TrimSpace(value)
	switch {
	case width <= 0:
		return ""
	case len(value) <= width:
		return value
	case width <= 3:
		return value[:width]
	}
	return value[:width-3] + "..."
}
