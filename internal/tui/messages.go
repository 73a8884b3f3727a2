package tui

import (
	"hlsup/internal/progress"
	"hlsup/internal/resolve"
)

// StepMsg sets the status and detail shown for one step.
type StepMsg struct {
	State  resolve.State
	Status string
	Detail string
}

// settleMsg marks every step still pending as skipped.
type settleMsg struct{}

// ActivityMsg replaces the activity line with the latest progress update.
type ActivityMsg progress.Update

// WarningMsg adds a line under the table that stays after the run ends.
type WarningMsg string

// WorkDoneMsg signals that the background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals that the work failed; the TUI shows it and quits.
type ErrorMsg struct {
	Err error
}
