package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hlsup/internal/hlserr"
	"hlsup/internal/tui"
)

var (
	workspaceDir string
	configPath   string
	outputJSON   bool
	plainOutput  bool
	logLevelFlag string
	assumeYes    bool
)

// Execute runs the root cobra command and returns the process exit code.
func Execute(ctx context.Context) int {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(cmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hlsup",
		Short:         "Resolve and install the Haskell language server for a project",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&workspaceDir, "workspace", "", "Path to the project directory")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to hlsup.yaml (default <workspace>/hlsup.yaml)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable the interactive progress table")
	cmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override log_level from the config")
	cmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to download prompts")

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newMetadataCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// printError writes err with its documentation link, if any, as a separate
// line so terminals can make it clickable.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	if link, ok := hlserr.DocLink(err); ok {
		if tui.IsTerminal(w) {
			link = tui.LinkStyle.Render(link)
		}
		fmt.Fprintf(w, "see: %s\n", link)
	}
}
