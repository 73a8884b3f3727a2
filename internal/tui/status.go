package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"hlsup/internal/progress"
)

const clearLine = "\r\033[K"

// StatusWriter keeps a single spinner line on a terminal for commands that
// install or download without the step table.
type StatusWriter struct {
	out io.Writer

	mu      sync.Mutex
	text    string
	percent float64
	since   time.Time

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewStatusWriter starts redrawing text on out until Stop is called.
func NewStatusWriter(out io.Writer, text string) *StatusWriter {
	sw := &StatusWriter{
		out:     out,
		text:    text,
		percent: -1,
		since:   time.Now(),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go sw.redraw()
	return sw
}

// Report implements progress.Sink. The elapsed time restarts whenever the
// text changes.
func (sw *StatusWriter) Report(u progress.Update) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if text := formatActivity(u.Title, u.Message); text != "" && text != sw.text {
		sw.text, sw.since = text, time.Now()
	}
	sw.percent = u.Percent
}

// Stop ends the spinner and erases its line. It is safe to call twice.
func (sw *StatusWriter) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.stop)
		<-sw.stopped
		fmt.Fprint(sw.out, clearLine)
	})
}

func (sw *StatusWriter) redraw() {
	defer close(sw.stopped)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-sw.stop:
			return
		case <-ticker.C:
		}
		sw.mu.Lock()
		line := sw.line(frame, time.Since(sw.since))
		sw.mu.Unlock()
		fmt.Fprint(sw.out, clearLine+line)
	}
}

func (sw *StatusWriter) line(frame int, elapsed time.Duration) string {
	line := spinnerFrames[frame%len(spinnerFrames)] + " " + sw.text
	if sw.percent >= 0 {
		line += fmt.Sprintf(" %3.0f%%", sw.percent)
	}
	return line + " (" + roundElapsed(elapsed).String() + ")"
}

// roundElapsed drops precision that would only make the line flicker.
func roundElapsed(d time.Duration) time.Duration {
	switch {
	case d < time.Second:
		return d.Round(10 * time.Millisecond)
	case d < time.Minute:
		return d.Round(100 * time.Millisecond)
	}
	return d.Round(time.Second)
}
