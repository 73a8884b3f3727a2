package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hlsup/internal/paths"
	"hlsup/internal/progress"
	"hlsup/internal/tui"
)

// sink is a progress.Sink that can be stopped.
type sink interface {
	progress.Sink
	Stop()
}

type quietSink struct{}

func (quietSink) Report(progress.Update) {}
func (quietSink) Stop()                  {}

// statusWriter shows a spinner on stderr when it is a terminal and the
// output is not JSON.
func statusWriter(cmd *cobra.Command, message string) sink {
	out := cmd.ErrOrStderr()
	if tui.DetectMode(out, plainOutput, outputJSON) != tui.ModeTUI {
		return quietSink{}
	}
	return tui.NewStatusWriter(out, message)
}

// lockNotice tells the user which process a lock acquisition is waiting on.
func lockNotice(cmd *cobra.Command, what string) paths.WaitFunc {
	return func(pid int) {
		if pid > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "waiting for %s lock held by pid %d\n", what, pid)
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "waiting for %s lock\n", what)
	}
}
