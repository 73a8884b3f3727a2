package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"hlsup/internal/resolve"
	"hlsup/internal/tools"
	"hlsup/internal/tui"
	"hlsup/internal/version"
)

var (
	listCategory string
	installSpec  tools.Toolchain
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and manage ghcup tools",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsUpgradeCmd())
	cmd.AddCommand(newToolsWhereCmd())
	cmd.AddCommand(newToolsInstalledCmd())
	cmd.AddCommand(newToolsVariantsCmd())
	cmd.AddCommand(newToolsInstallCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [ghc|cabal|stack|hls]...",
		Short: "List tool versions known to ghcup",
		RunE:  runToolsList,
	}
	cmd.Flags().StringVarP(&listCategory, "category", "c", string(tools.CategoryInstalled), "installed, available or set")
	return cmd
}

func runToolsList(cmd *cobra.Command, args []string) (err error) {
	category, err := tools.ParseCategory(listCategory)
	if err != nil {
		return err
	}
	kinds := tools.Kinds
	if len(args) > 0 {
		kinds = nil
		for _, arg := range args {
			kind, err := tools.ParseKind(arg)
			if err != nil {
				return err
			}
			kinds = append(kinds, kind)
		}
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e, &err)
	m, err := e.manager()
	if err != nil {
		return err
	}

	var infos []tools.ToolInfo
	for _, kind := range kinds {
		rows, err := m.ListTool(cmd.Context(), kind, category)
		if err != nil {
			return err
		}
		infos = append(infos, rows...)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), infos)
	}
	printToolTable(cmd.OutOrStdout(), infos)
	return nil
}

func printToolTable(w io.Writer, infos []tools.ToolInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "(no versions)")
		return
	}
	fmt.Fprintf(w, "%-6s %-12s %s\n", "Tool", "Version", "Tags")
	for _, info := range infos {
		fmt.Fprintf(w, "%-6s %-12s %s\n", info.Kind, info.Version, tui.OrDash(strings.Join(info.Tags, ",")))
	}
}

func newToolsUpgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade ghcup itself",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(e, &err)
			m, err := e.manager()
			if err != nil {
				return err
			}
			sw := statusWriter(cmd, "Upgrading ghcup")
			defer sw.Stop()
			return m.Upgrade(cmd.Context(), true, sw)
		},
	}
}

func newToolsWhereCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "where",
		Short: "Print the ghcup binary and its bindir",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(e, &err)
			m, err := e.manager()
			if err != nil {
				return err
			}
			bindir, err := m.BinDir(cmd.Context())
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"ghcup": m.Path, "bindir": bindir})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ghcup:  %s\nbindir: %s\n", m.Path, bindir)
			return nil
		},
	}
}

func newToolsVariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List locally built server versions and the compilers they support",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(e, &err)
			m, err := e.manager()
			if err != nil {
				return err
			}
			variants, err := m.InstalledServerVariants(cmd.Context())
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), variants)
			}
			printSupportTable(cmd.OutOrStdout(), variants)
			return nil
		},
	}
}

// printSupportTable prints server versions newest first.
func printSupportTable(w io.Writer, support map[string][]string) {
	if len(support) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	versions := make([]string, 0, len(support))
	for v := range support {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	version.Sort(versions)
	fmt.Fprintf(w, "%-10s %s\n", "HLS", "GHC")
	for i := len(versions) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%-10s %s\n", versions[i], strings.Join(support[versions[i]], " "))
	}
}

func newToolsInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install an explicit toolchain into hlsup's storage",
		RunE:  runToolsInstall,
	}
	cmd.Flags().StringVar(&installSpec.HLS, "hls", "", "Server version")
	cmd.Flags().StringVar(&installSpec.GHC, "ghc", "", "Compiler version")
	cmd.Flags().StringVar(&installSpec.Cabal, "cabal", "", "Cabal version")
	cmd.Flags().StringVar(&installSpec.Stack, "stack", "", "Stack version")
	return cmd
}

func runToolsInstall(cmd *cobra.Command, _ []string) (err error) {
	if installSpec == (tools.Toolchain{}) {
		return fmt.Errorf("name at least one of --hls, --ghc, --cabal, --stack")
	}
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e, &err)
	m, err := e.manager()
	if err != nil {
		return err
	}
	dir := e.Storage.ToolchainDir(installSpec.DirName())
	unlock, err := e.Storage.AcquireToolchainLock(cmd.Context(), installSpec.DirName(), lockNotice(cmd, "toolchain"))
	if err != nil {
		return err
	}
	defer unlock()

	sw := statusWriter(cmd, "Installing "+installSpec.String())
	launcher, err := m.Install(cmd.Context(), installSpec, dir, sw)
	sw.Stop()
	if err != nil {
		return err
	}
	recordUse(e, resolve.Result{InstallDir: dir, Toolchain: installSpec})
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"toolchain": installSpec, "dir": dir, "launcher": launcher})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed %s into %s\n", installSpec, dir)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
