package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a config value to a Level. Empty input means info.
func ParseLevel(value string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", value)
}

// Logger is the leveled sink every component logs through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger prefixes each line with its level and drops anything below Min.
type StdLogger struct {
	out *log.Logger
	Min Level
}

// FromStd wraps an existing *log.Logger.
func FromStd(l *log.Logger, min Level) *StdLogger {
	return &StdLogger{out: l, Min: min}
}

func (s *StdLogger) logf(level Level, format string, args ...any) {
	if s == nil || s.out == nil || level < s.Min {
		return
	}
	_ = s.out.Output(3, level.String()+" "+fmt.Sprintf(format, args...))
}

func (s *StdLogger) Debugf(format string, args ...any) { s.logf(LevelDebug, format, args...) }
func (s *StdLogger) Infof(format string, args ...any)  { s.logf(LevelInfo, format, args...) }
func (s *StdLogger) Warnf(format string, args ...any)  { s.logf(LevelWarn, format, args...) }
func (s *StdLogger) Errorf(format string, args ...any) { s.logf(LevelError, format, args...) }

// New creates a logger that writes to a timestamped file inside logsDir. The
// returned closer should be closed when logging is no longer needed.
func New(logsDir string, min Level) (*StdLogger, io.Closer, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	filePath := filepath.Join(logsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	return FromStd(logger, min), file, nil
}

type nop struct{}

func (nop) Debugf(string, ...any) {}
func (nop) Infof(string, ...any)  {}
func (nop) Warnf(string, ...any)  {}
func (nop) Errorf(string, ...any) {}

// Nop returns a logger that discards everything.
func Nop() Logger { return nop{} }

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nop{}
	}
	return l
}
