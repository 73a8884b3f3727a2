package tui

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"hlsup/internal/progress"
	"hlsup/internal/resolve"
)

// StateReporter turns orchestrator events into bubbletea messages.
type StateReporter struct {
	send func(tea.Msg)
}

// NewStateReporter wraps a tea.Program send function.
func NewStateReporter(send func(tea.Msg)) *StateReporter {
	return &StateReporter{send: send}
}

func (r *StateReporter) row(state resolve.State, status, detail string) {
	r.send(StepMsg{State: state, Status: status, Detail: detail})
}

// Entered implements resolve.Observer.
func (r *StateReporter) Entered(state resolve.State) {
	r.row(state, StatusRunning, "")
}

// Finished implements resolve.Observer. Steps skipped by an early Ready are
// marked skipped.
func (r *StateReporter) Finished(state resolve.State, detail string) {
	if state == resolve.Ready {
		r.send(settleMsg{})
		r.send(ActivityMsg(progress.Message("", "")))
		return
	}
	r.row(state, StatusDone, OrDash(detail))
}

// Failed implements resolve.Observer.
func (r *StateReporter) Failed(state resolve.State, err error) {
	r.row(state, StatusError, err.Error())
}

// Warned implements resolve.Observer.
func (r *StateReporter) Warned(_ resolve.State, message string) {
	r.send(WarningMsg(message))
}

// Report implements progress.Sink.
func (r *StateReporter) Report(u progress.Update) {
	r.send(ActivityMsg(u))
}

// PlainReporter writes one line per event for non-interactive output.
type PlainReporter struct {
	mu  sync.Mutex
	out io.Writer
	// Verbose also prints progress lines from running tools.
	Verbose bool
}

// NewPlainReporter writes to out.
func NewPlainReporter(out io.Writer, verbose bool) *PlainReporter {
	return &PlainReporter{out: out, Verbose: verbose}
}

func (r *PlainReporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Entered implements resolve.Observer.
func (r *PlainReporter) Entered(state resolve.State) {
	if state == resolve.Ready {
		return
	}
	r.printf("==> %s\n", state)
}

// Finished implements resolve.Observer.
func (r *PlainReporter) Finished(state resolve.State, detail string) {
	if detail == "" {
		return
	}
	r.printf("    %s: %s\n", state, detail)
}

// Failed implements resolve.Observer.
func (r *PlainReporter) Failed(state resolve.State, err error) {
	r.printf("    %s failed: %v\n", state, err)
}

// Warned implements resolve.Observer. Warnings print regardless of Verbose.
func (r *PlainReporter) Warned(_ resolve.State, message string) {
	r.printf("    warning: %s\n", message)
}

// Report implements progress.Sink.
func (r *PlainReporter) Report(u progress.Update) {
	if !r.Verbose {
		return
	}
	if u.Percent >= 0 {
		// Transfers report every chunk; only the end is worth a line.
		if u.Percent < 100 {
			return
		}
		r.printf("    %s done\n", formatActivity(u.Title, u.Message))
		return
	}
	r.printf("    %s\n", formatActivity(u.Title, u.Message))
}
