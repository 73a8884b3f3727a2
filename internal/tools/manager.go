package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"hlsup/internal/hlserr"
	"hlsup/internal/logx"
	"hlsup/internal/process"
	"hlsup/internal/progress"
	"hlsup/internal/version"
)

// Manager drives a located ghcup binary through a process runner.
type Manager struct {
	Path   string
	Runner process.Runs
	Logger logx.Logger
	// Env is applied to every ghcup invocation on top of the runner's base.
	Env map[string]string
}

// NewManager binds ghcup at path to runner.
func NewManager(path string, runner process.Runs, logger logx.Logger) *Manager {
	return &Manager{Path: path, Runner: runner, Logger: logx.OrNop(logger)}
}

func (m *Manager) logger() logx.Logger { return logx.OrNop(m.Logger) }

func (m *Manager) call(ctx context.Context, args []string, opts process.Options) (process.Result, error) {
	full := append([]string{"--no-verbose"}, args...)
	if opts.Env == nil {
		opts.Env = m.Env
	}
	return m.Runner.Run(ctx, m.Path, full, opts)
}

// ListTool runs `ghcup list` for kind filtered by category and parses the raw
// tabular output.
func (m *Manager) ListTool(ctx context.Context, kind Kind, category Category) ([]ToolInfo, error) {
	res, err := m.call(ctx, []string{"list", "-t", string(kind), "-c", string(category), "-r"}, process.Options{
		Title: fmt.Sprintf("Listing %s versions", kind),
	})
	if err != nil {
		return nil, fmt.Errorf("list %s %s: %w", category, kind, err)
	}
	infos := ParseList(kind, res.Stdout)
	m.checkOrder(kind, category, infos)
	return infos, nil
}

// ParseList reads ghcup's raw list format. Each row holds a marker column, a
// version and an optional comma separated tag list; other columns are ignored.
func ParseList(kind Kind, output string) []ToolInfo {
	var infos []ToolInfo
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		info := ToolInfo{Kind: kind, Version: fields[1]}
		if len(fields) > 2 {
			for _, tag := range strings.Split(fields[2], ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					info.Tags = append(info.Tags, tag)
				}
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// checkOrder logs when ghcup's row order disagrees with version ordering. The
// last row is still treated as the latest.
func (m *Manager) checkOrder(kind Kind, category Category, infos []ToolInfo) {
	if len(infos) < 2 {
		return
	}
	versions := make([]string, len(infos))
	for i, info := range infos {
		versions[i] = info.Version
	}
	if max := version.Max(versions); max != versions[len(versions)-1] {
		m.logger().Debugf("ghcup list %s %s: last row %s is not the highest version %s", category, kind, versions[len(versions)-1], max)
	}
}

func last(infos []ToolInfo) (ToolInfo, bool) {
	if len(infos) == 0 {
		return ToolInfo{}, false
	}
	return infos[len(infos)-1], true
}

// SetVersion returns the version ghcup has set for kind, if any.
func (m *Manager) SetVersion(ctx context.Context, kind Kind) (ToolInfo, bool, error) {
	infos, err := m.ListTool(ctx, kind, CategorySet)
	if err != nil {
		return ToolInfo{}, false, err
	}
	info, ok := last(infos)
	return info, ok, nil
}

// AnyLatestVersion returns the latest installed version, falling back to the
// latest available version tagged "latest".
func (m *Manager) AnyLatestVersion(ctx context.Context, kind Kind) (ToolInfo, bool, error) {
	installed, err := m.ListTool(ctx, kind, CategoryInstalled)
	if err != nil {
		return ToolInfo{}, false, err
	}
	if info, ok := last(installed); ok {
		return info, true, nil
	}
	return m.LatestAvailable(ctx, kind, "latest")
}

// LatestAvailable returns the last available row carrying tag.
func (m *Manager) LatestAvailable(ctx context.Context, kind Kind, tag string) (ToolInfo, bool, error) {
	available, err := m.ListTool(ctx, kind, CategoryAvailable)
	if err != nil {
		return ToolInfo{}, false, err
	}
	var tagged []ToolInfo
	for _, info := range available {
		if info.HasTag(tag) {
			tagged = append(tagged, info)
		}
	}
	info, ok := last(tagged)
	return info, ok, nil
}

// FindLatestUserInstalledTool prefers the set version, then any latest
// installed or available version.
func (m *Manager) FindLatestUserInstalledTool(ctx context.Context, kind Kind) (ToolInfo, error) {
	if info, ok, err := m.SetVersion(ctx, kind); err != nil {
		return ToolInfo{}, err
	} else if ok {
		return info, nil
	}
	info, ok, err := m.AnyLatestVersion(ctx, kind)
	if err != nil {
		return ToolInfo{}, err
	}
	if !ok {
		return ToolInfo{}, &hlserr.ManagerError{
			Message: fmt.Sprintf("unable to find a set, installed or latest version of %s", kind),
		}
	}
	return info, nil
}

// IsInstalled reports whether ghcup lists ver of kind as installed.
func (m *Manager) IsInstalled(ctx context.Context, kind Kind, ver string) (bool, error) {
	installed, err := m.ListTool(ctx, kind, CategoryInstalled)
	if err != nil {
		return false, err
	}
	for _, info := range installed {
		if info.Version == ver {
			return true, nil
		}
	}
	return false, nil
}

// Upgrade runs `ghcup upgrade` when enabled.
func (m *Manager) Upgrade(ctx context.Context, enabled bool, sink progress.Sink) error {
	if !enabled {
		m.logger().Debugf("ghcup upgrade disabled")
		return nil
	}
	_, err := m.call(ctx, []string{"upgrade"}, process.Options{
		Title:       "Upgrading ghcup",
		Cancellable: true,
		Progress:    sink,
	})
	if err != nil {
		return &hlserr.ManagerError{Message: "ghcup upgrade failed", Err: err}
	}
	return nil
}

// BinDir asks ghcup where it installs binaries.
func (m *Manager) BinDir(ctx context.Context) (string, error) {
	res, err := m.call(ctx, []string{"whereis", "bindir"}, process.Options{Title: "Locating ghcup bindir"})
	if err != nil {
		return "", fmt.Errorf("ghcup whereis bindir: %w", err)
	}
	dir := res.Output()
	if dir == "" {
		return "", errors.New("ghcup whereis bindir: empty output")
	}
	return dir, nil
}

var serverVariantPattern = regexp.MustCompile(`^haskell-language-server-(.+)~(.+?)(?:\.exe)?$`)

// InstalledServerVariants scans ghcup's bindir for compiler-specific server
// binaries and returns the compilers each server version was built for.
func (m *Manager) InstalledServerVariants(ctx context.Context) (map[string][]string, error) {
	dir, err := m.BinDir(ctx)
	if err != nil {
		return nil, err
	}
	return ScanServerVariants(dir)
}

// ScanServerVariants reads dir for `haskell-language-server-<ghc>~<hls>`
// binaries. A missing dir yields an empty map.
func ScanServerVariants(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	out := map[string][]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := serverVariantPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		ghc, hls := match[1], match[2]
		out[hls] = append(out[hls], ghc)
	}
	for hls := range out {
		version.Sort(out[hls])
	}
	return out, nil
}

// InstallArgs builds the `ghcup run` arguments installing tc into dir.
func InstallArgs(tc Toolchain, dir string) []string {
	args := []string{"run"}
	for _, kind := range Kinds {
		if v := tc.Get(kind); v != "" {
			args = append(args, "--"+string(kind), v)
		}
	}
	return append(args, "--install", "--bindir", dir)
}

// Install installs tc into dir through `ghcup run` and returns the path of
// the server launcher in dir.
func (m *Manager) Install(ctx context.Context, tc Toolchain, dir string, sink progress.Sink) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("create toolchains dir: %w", err)
	}
	m.logger().Infof("installing %s into %s", tc, dir)
	_, err := m.call(ctx, InstallArgs(tc, dir), process.Options{
		Title:       "Installing " + tc.String(),
		Cancellable: true,
		Progress:    sink,
	})
	if err != nil {
		return "", fmt.Errorf("install %s: %w", tc, err)
	}
	return filepath.Join(dir, BinaryName(KindHLS)), nil
}
