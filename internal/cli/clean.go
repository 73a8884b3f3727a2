package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hlsup/internal/installs"
	"hlsup/internal/metadata"
	"hlsup/internal/paths"
)

var (
	cleanDryRun    bool
	cleanOlderThan time.Duration
)

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove installed toolchains and cached data from hlsup's storage",
	}

	cmd.PersistentFlags().BoolVar(&cleanDryRun, "dry-run", false, "List what would be removed without deleting")

	cmd.AddCommand(newCleanTargetCmd("toolchains", "Remove project toolchains", cleanToolchains))
	cmd.AddCommand(newCleanTargetCmd("bootstrap", "Remove bootstrap toolchains", cleanBootstrap))
	cmd.AddCommand(newCleanTargetCmd("cache", "Remove the cached release metadata", cleanCache))
	cmd.AddCommand(newCleanTargetCmd("logs", "Remove all log files", cleanLogs))
	cmd.AddCommand(newCleanTargetCmd("all", "Remove toolchains, caches and logs", cleanAll))

	unused := newCleanTargetCmd("unused", "Remove project toolchains no workspace resolved recently", cleanUnused)
	unused.Flags().DurationVar(&cleanOlderThan, "older-than", 30*24*time.Hour, "Remove toolchains last used longer ago than this")
	cmd.AddCommand(unused)

	return cmd
}

type cleanResult struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
	Skipped    int   `json:"skipped"`
	DryRun     bool  `json:"dry_run"`
}

type cleaner func(s paths.Storage, out io.Writer, result *cleanResult)

func newCleanTargetCmd(name, short string, fn cleaner) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer closeEnv(e, &err)

			out := cmd.OutOrStdout()
			result := cleanResult{DryRun: cleanDryRun}
			fn(e.Storage, out, &result)
			if !cleanDryRun {
				pruneInstallIndex(e)
			}
			return writeCleanResult(out, name, result)
		},
	}
}

func cleanToolchains(s paths.Storage, out io.Writer, result *cleanResult) {
	for _, dir := range toolchainDirs(s.ToolchainsDir, func(name string) bool { return !strings.HasPrefix(name, "bootstrap-") }) {
		removeToolchain(s, dir, out, result)
	}
}

func cleanBootstrap(s paths.Storage, out io.Writer, result *cleanResult) {
	for _, dir := range toolchainDirs(s.ToolchainsDir, func(name string) bool { return strings.HasPrefix(name, "bootstrap-") }) {
		removeToolchain(s, dir, out, result)
	}
}

// removeToolchain skips directories another hlsup process is installing into.
func removeToolchain(s paths.Storage, dir string, out io.Writer, result *cleanResult) {
	release, err := s.TryToolchainLock(filepath.Base(dir))
	if err != nil {
		if !outputJSON {
			fmt.Fprintf(out, "skipping %s: %v\n", dir, err)
		}
		result.Skipped++
		return
	}
	defer release()
	removeEntry(dir, out, result)
}

// cleanUnused only removes toolchains the install index knows about.
func cleanUnused(s paths.Storage, out io.Writer, result *cleanResult) {
	idx, err := installs.Load(installs.Path(s.Root))
	if err != nil {
		fmt.Fprintf(out, "error reading install index: %v\n", err)
		result.Skipped++
		return
	}
	for _, entry := range idx.Stale(cleanOlderThan, time.Now()) {
		removeToolchain(s, filepath.Join(s.ToolchainsDir, entry.Dir), out, result)
	}
}

func pruneInstallIndex(e *env) {
	path := installs.Path(e.Storage.Root)
	idx, err := installs.Load(path)
	if err != nil {
		e.Logger.Warnf("install index: %v", err)
		return
	}
	if idx.Prune(e.Storage.ToolchainsDir) == 0 {
		return
	}
	if err := installs.Save(path, idx); err != nil {
		e.Logger.Warnf("install index: %v", err)
	}
}

func cleanCache(s paths.Storage, out io.Writer, result *cleanResult) {
	removeSingleFile(metadata.CachePath(s.Root), out, result)
}

// cleanLogs keeps the log file of the running command.
func cleanLogs(s paths.Storage, out io.Writer, result *cleanResult) {
	entries, err := os.ReadDir(s.LogsDir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) > 0 {
		names = names[:len(names)-1]
	}
	for _, name := range names {
		removeEntry(filepath.Join(s.LogsDir, name), out, result)
	}
}

func cleanAll(s paths.Storage, out io.Writer, result *cleanResult) {
	cleanToolchains(s, out, result)
	cleanBootstrap(s, out, result)
	cleanCache(s, out, result)
	cleanLogs(s, out, result)
}

func toolchainDirs(root string, keep func(name string) bool) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && keep(entry.Name()) {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs
}

// diskUsage sums the sizes of regular files under path.
func diskUsage(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

func removeSingleFile(path string, out io.Writer, result *cleanResult) {
	exists, err := paths.FileExists(path)
	if err != nil || !exists {
		return
	}
	removeEntry(path, out, result)
}

func removeEntry(path string, out io.Writer, result *cleanResult) {
	if _, err := os.Lstat(path); err != nil {
		result.Skipped++
		return
	}
	size := diskUsage(path)

	if cleanDryRun {
		fmt.Fprintf(out, "would remove %s (%s)\n", path, formatSize(size))
		result.Removed++
		result.FreedBytes += size
		return
	}

	if err := os.RemoveAll(path); err != nil {
		if !outputJSON {
			fmt.Fprintf(out, "error removing %s: %v\n", path, err)
		}
		result.Skipped++
		return
	}

	result.Removed++
	result.FreedBytes += size
	if !outputJSON {
		fmt.Fprintf(out, "removed %s (%s)\n", path, formatSize(size))
	}
}

func writeCleanResult(out io.Writer, label string, result cleanResult) error {
	if outputJSON {
		return json.NewEncoder(out).Encode(result)
	}

	action := "complete"
	if cleanDryRun {
		action = "(dry run)"
	}
	fmt.Fprintf(out, "\nClean %s %s: %d removed, %s freed, %d skipped\n",
		label, action, result.Removed, formatSize(result.FreedBytes), result.Skipped)
	return nil
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}
