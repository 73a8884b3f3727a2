// Package progress carries advisory progress updates from long running work
// to whatever renders them.
package progress

// Update is a single progress report. Percent is negative when only a
// message is known.
type Update struct {
	Title   string
	Message string
	Percent float64
}

// Sink receives updates. Implementations must be safe for concurrent use.
type Sink interface {
	Report(Update)
}

// Func adapts a function to Sink.
type Func func(Update)

func (f Func) Report(u Update) {
	if f != nil {
		f(u)
	}
}

// Report sends u to s when s is non-nil.
func Report(s Sink, u Update) {
	if s != nil {
		s.Report(u)
	}
}

// Message is shorthand for a message-only update.
func Message(title, msg string) Update {
	return Update{Title: title, Message: msg, Percent: -1}
}
