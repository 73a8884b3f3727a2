package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hlsup/internal/installs"
	"hlsup/internal/resolve"
)

// recordUse notes that the workspace resolved to the result's toolchain.
// Failures only warn since the launcher is already usable.
func recordUse(e *env, res resolve.Result) {
	if res.InstallDir == "" {
		return
	}
	path := installs.Path(e.Storage.Root)
	idx, err := installs.Load(path)
	if err != nil {
		e.Logger.Warnf("install index: %v", err)
		return
	}
	idx.Touch(res.InstallDir, res.Toolchain, e.Workspace, time.Now())
	if err := installs.Save(path, idx); err != nil {
		e.Logger.Warnf("install index: %v", err)
	}
}

func newToolsInstalledCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "installed",
		Short: "List toolchains installed into hlsup's storage",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(e, &err)
			idx, err := installs.Load(installs.Path(e.Storage.Root))
			if err != nil {
				return err
			}
			idx.Prune(e.Storage.ToolchainsDir)
			entries := idx.Sorted()
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			printInstalledTable(cmd.OutOrStdout(), entries, time.Now())
			return nil
		},
	}
}

func printInstalledTable(w io.Writer, entries []installs.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	fmt.Fprintf(w, "%-10s %-10s %-16s %s\n", "HLS", "GHC", "Last used", "Workspaces")
	for _, entry := range entries {
		fmt.Fprintf(w, "%-10s %-10s %-16s %s\n",
			entry.Toolchain.HLS, entry.Toolchain.GHC,
			humanize.RelTime(entry.LastUsedAt, now, "ago", "from now"),
			strings.Join(entry.Workspaces, ", "))
	}
}
