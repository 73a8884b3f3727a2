package tui

import "github.com/charmbracelet/lipgloss"

// Step statuses shown in the STATUS column.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

var (
	// TitleStyle styles the heading above the table.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	// ActivityStyle styles the live activity line.
	ActivityStyle = lipgloss.NewStyle().Faint(true)

	// WarningStyle styles fallback warnings under the table.
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	// LinkStyle highlights documentation links attached to errors.
	LinkStyle = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("4"))

	statusStyles = map[string]lipgloss.Style{
		StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusSkipped: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		StatusPending: lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
