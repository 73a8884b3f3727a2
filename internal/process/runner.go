// Package process runs external tools with a merged environment, streams
// their output as progress and reports failures with the captured output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"hlsup/internal/logx"
	"hlsup/internal/progress"
)

// Options configures a single invocation.
type Options struct {
	Dir string
	// Env overrides the runner's base environment. Values may reference
	// variables of the merged environment, e.g. "/opt/bin:$PATH".
	Env         map[string]string
	Title       string
	Cancellable bool
	Progress    progress.Sink
}

// Result holds the captured output of a finished process.
type Result struct {
	Stdout string
	Stderr string
}

// Output returns stdout with surrounding whitespace removed.
func (r Result) Output() string {
	return strings.TrimSpace(r.Stdout)
}

// ExitError reports a process that exited non-zero or could not be started.
type ExitError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + firstLine(stderr)
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner executes commands. BaseEnv is layered over the inherited process
// environment for every call.
type Runner struct {
	BaseEnv map[string]string
	Logger  logx.Logger
}

// Runs abstracts Runner for callers that substitute a fake in tests.
type Runs interface {
	Run(ctx context.Context, binary string, args []string, opts Options) (Result, error)
}

var _ Runs = (*Runner)(nil)

// Env returns the environment a command would receive with the given
// per-call overrides.
func (r *Runner) Env(overrides map[string]string) []string {
	var base map[string]string
	if r != nil {
		base = r.BaseEnv
	}
	return MergeEnv(os.Environ(), base, overrides)
}

// Run starts binary with args and waits for it to finish. A zero exit status
// yields the captured output; anything else yields an *ExitError carrying it.
// When opts.Cancellable is set, cancelling ctx kills the child and Run returns
// an error wrapping the context error. Otherwise ctx cancellation is ignored.
func (r *Runner) Run(ctx context.Context, binary string, args []string, opts Options) (Result, error) {
	logger := logx.OrNop(nil)
	if r != nil {
		logger = logx.OrNop(r.Logger)
	}

	runCtx := ctx
	if !opts.Cancellable {
		runCtx = context.WithoutCancel(ctx)
	}

	commandLine := strings.TrimSpace(binary + " " + strings.Join(args, " "))
	title := opts.Title
	if title == "" {
		title = commandLine
	}

	env := r.Env(opts.Env)
	cmd := exec.CommandContext(runCtx, resolveBinary(binary, env), args...)
	cmd.Dir = opts.Dir
	cmd.Env = env
	cmd.WaitDelay = 2 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	if opts.Progress != nil {
		cmd.Stdout = &lineWriter{buf: &stdoutBuf, title: title, sink: opts.Progress}
		cmd.Stderr = &lineWriter{buf: &stderrBuf, title: title, sink: opts.Progress}
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	logger.Infof("Execute in %s: %s", dir, commandLine)
	progress.Report(opts.Progress, progress.Message(title, "started"))

	err := cmd.Run()
	res := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}

	if opts.Cancellable && runCtx.Err() != nil {
		logger.Warnf("%s cancelled (%s)", commandLine, processState(cmd))
		return res, fmt.Errorf("%s: cancelled: %w", commandLine, context.Cause(runCtx))
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Errorf("%s failed (%s)", commandLine, processState(cmd))
		if res.Stdout != "" {
			logger.Errorf("stdout: %s", res.Stdout)
		}
		if res.Stderr != "" {
			logger.Errorf("stderr: %s", res.Stderr)
		}
		return res, &ExitError{
			Command:  commandLine,
			ExitCode: exitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}

	logger.Infof("%s finished (%s)", commandLine, processState(cmd))
	progress.Report(opts.Progress, progress.Update{Title: title, Message: "done", Percent: 100})
	return res, nil
}

func processState(cmd *exec.Cmd) string {
	if cmd.ProcessState == nil {
		return "not started"
	}
	return cmd.ProcessState.String()
}

// resolveBinary looks bare names up on the PATH of the child environment so
// per-call PATH overrides apply to the binary itself.
func resolveBinary(binary string, env []string) string {
	if path, err := LookPath(binary, env); err == nil {
		return path
	}
	return binary
}

// lineWriter captures output and forwards each complete line as a progress
// message.
type lineWriter struct {
	mu      sync.Mutex
	buf     *bytes.Buffer
	pending []byte
	title   string
	sink    progress.Sink
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(w.pending[:idx]))
		w.pending = w.pending[idx+1:]
		if line != "" {
			w.sink.Report(progress.Message(w.title, line))
		}
	}
	return len(p), nil
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
