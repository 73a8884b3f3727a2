package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hlsup/internal/config"
	"hlsup/internal/installs"
	"hlsup/internal/metadata"
	"hlsup/internal/paths"
	"hlsup/internal/tools"
)

func TestJoinComma(t *testing.T) {
	tests := []struct {
		input []string
		want  string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b", "c"}, "a, b, c"},
	}
	for _, tt := range tests {
		if got := joinComma(tt.input); got != tt.want {
			t.Errorf("joinComma(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCheckConfig(t *testing.T) {
	if got := checkConfig(config.Config{}, config.ValidationErrors{{Message: "x"}}); got.Status != "error" {
		t.Errorf("validation errors: status %q", got.Status)
	}
	if got := checkConfig(config.Default(), nil); got.Status != "warning" {
		t.Errorf("unset mode: status %q", got.Status)
	}
	cfg := config.Default()
	cfg.ManageHLS = config.ModeGHCup
	cfg.Toolchain = map[string]string{"ghc": "9.2.5"}
	got := checkConfig(cfg, nil)
	if got.Status != "ok" || !strings.Contains(got.Summary, "pinned ghc 9.2.5") {
		t.Errorf("check = %+v", got)
	}
}

func storageFor(t *testing.T) paths.Storage {
	t.Helper()
	root := t.TempDir()
	s := paths.Storage{
		Root:          root,
		LogsDir:       filepath.Join(root, "logs"),
		BinDir:        filepath.Join(root, "bin"),
		ToolchainsDir: filepath.Join(root, "toolchains"),
		LocksDir:      filepath.Join(root, "locks"),
	}
	if err := s.Ensure(); err != nil {
		t.Fatal(err)
	}
	return s
}

func mkfile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckStorageCountsProjectToolchains(t *testing.T) {
	s := storageFor(t)
	mkfile(t, filepath.Join(s.ToolchainsDir, "hls-1.8.0-ghc-9.2.5", "ghc"), 1)
	mkfile(t, filepath.Join(s.ToolchainsDir, "bootstrap-hls-1.8.0", "ghc"), 1)
	if got := checkStorage(s); !strings.Contains(got.Summary, "(1 toolchains)") {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestCleanTargets(t *testing.T) {
	s := storageFor(t)
	project := filepath.Join(s.ToolchainsDir, "hls-1.8.0-ghc-9.2.5")
	boot := filepath.Join(s.ToolchainsDir, "bootstrap-hls-1.8.0_ghc-9.2.5")
	mkfile(t, filepath.Join(project, "haskell-language-server-wrapper"), 2048)
	mkfile(t, filepath.Join(boot, "ghc"), 10)
	mkfile(t, filepath.Join(s.Root, "ghcupReleases.cache.json"), 5)
	mkfile(t, filepath.Join(s.LogsDir, "hlsup-20260101-000000.log"), 1)
	mkfile(t, filepath.Join(s.LogsDir, "hlsup-20260102-000000.log"), 1)

	var out bytes.Buffer
	cleanDryRun = true
	var dry cleanResult
	cleanToolchains(s, &out, &dry)
	cleanDryRun = false
	if dry.Removed != 1 || dry.FreedBytes != 2048 {
		t.Fatalf("dry run = %+v", dry)
	}
	if _, err := os.Stat(project); err != nil {
		t.Fatal("dry run removed the toolchain")
	}

	var res cleanResult
	cleanAll(s, &out, &res)
	if res.Removed != 4 {
		t.Fatalf("removed %d, want 4:\n%s", res.Removed, out.String())
	}
	for _, gone := range []string{project, boot, filepath.Join(s.Root, "ghcupReleases.cache.json"), filepath.Join(s.LogsDir, "hlsup-20260101-000000.log")} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Errorf("%s still exists", gone)
		}
	}
	if _, err := os.Stat(filepath.Join(s.LogsDir, "hlsup-20260102-000000.log")); err != nil {
		t.Error("newest log should be kept")
	}
}

func TestFormatSize(t *testing.T) {
	if got := formatSize(0); got != "-" {
		t.Errorf("formatSize(0) = %q", got)
	}
	if got := formatSize(2048); got != "2.0 KiB" {
		t.Errorf("formatSize(2048) = %q", got)
	}
}

func TestPrintTables(t *testing.T) {
	var buf bytes.Buffer
	printToolTable(&buf, []tools.ToolInfo{{Kind: tools.KindGHC, Version: "9.2.5", Tags: []string{"recommended"}}, {Kind: tools.KindGHC, Version: "9.4.4"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "recommended") || !strings.HasSuffix(lines[2], "-") {
		t.Fatalf("tool table:\n%s", buf.String())
	}

	buf.Reset()
	printSupportTable(&buf, map[string][]string{"1.8.0": {"9.2.5"}, "1.10.0": {"9.4.4", "9.6.1"}, "1.9.0": {"9.4.4"}})
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasPrefix(lines[1], "1.10.0") || !strings.HasPrefix(lines[3], "1.8.0") {
		t.Fatalf("support table not newest first:\n%s", buf.String())
	}
}

func TestPrompterNonInteractive(t *testing.T) {
	p := newPrompter(strings.NewReader(""), &bytes.Buffer{}, false)
	if _, err := p.ChooseMode(context.Background()); err != errModeNotSet {
		t.Fatalf("ChooseMode err = %v", err)
	}
	ok, err := p.ConfirmInstall(context.Background(), []tools.ToolInfo{{Kind: tools.KindGHC, Version: "9.2.5"}})
	if err != nil || ok {
		t.Fatalf("ConfirmInstall = %v, %v; want declined", ok, err)
	}

	yes := newPrompter(strings.NewReader(""), &bytes.Buffer{}, true)
	ok, err = yes.ConfirmInstall(context.Background(), nil)
	if err != nil || !ok {
		t.Fatalf("--yes ConfirmInstall = %v, %v", ok, err)
	}
}

func TestDescribeMissing(t *testing.T) {
	got := describeMissing([]tools.ToolInfo{{Kind: tools.KindHLS, Version: "1.8.0"}, {Kind: tools.KindGHC, Version: "9.2.5"}})
	if got != "Not installed yet: haskell-language-server 1.8.0, ghc 9.2.5" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanUnused(t *testing.T) {
	s := storageFor(t)
	now := time.Now()
	idx, err := installs.Load(installs.Path(s.Root))
	if err != nil {
		t.Fatal(err)
	}
	idx.Touch("hls-1.7.0-ghc-9.0.2", tools.Toolchain{HLS: "1.7.0", GHC: "9.0.2"}, "/ws", now.Add(-90*24*time.Hour))
	idx.Touch("hls-1.8.0-ghc-9.2.5", tools.Toolchain{HLS: "1.8.0", GHC: "9.2.5"}, "/ws", now)
	if err := installs.Save(installs.Path(s.Root), idx); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(s.ToolchainsDir, "hls-1.7.0-ghc-9.0.2")
	fresh := filepath.Join(s.ToolchainsDir, "hls-1.8.0-ghc-9.2.5")
	untracked := filepath.Join(s.ToolchainsDir, "hls-1.6.0-ghc-8.10.7")
	mkfile(t, filepath.Join(stale, "ghc"), 1)
	mkfile(t, filepath.Join(fresh, "ghc"), 1)
	mkfile(t, filepath.Join(untracked, "ghc"), 1)

	cleanOlderThan = 30 * 24 * time.Hour
	var res cleanResult
	cleanUnused(s, &bytes.Buffer{}, &res)
	if res.Removed != 1 {
		t.Fatalf("removed %d, want 1", res.Removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale toolchain kept")
	}
	for _, dir := range []string{fresh, untracked} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s removed", dir)
		}
	}
}

func TestPrintInstalledTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printInstalledTable(&buf, []installs.Entry{{
		Dir:        "hls-1.8.0-ghc-9.2.5",
		Toolchain:  tools.Toolchain{HLS: "1.8.0", GHC: "9.2.5"},
		LastUsedAt: now.Add(-2 * time.Hour),
		Workspaces: []string{"/ws/a"},
	}}, now)
	out := buf.String()
	if !strings.Contains(out, "2 hours ago") || !strings.Contains(out, "/ws/a") {
		t.Fatalf("table:\n%s", out)
	}
}

func TestCleanSkipsToolchainBeingInstalled(t *testing.T) {
	s := storageFor(t)
	busy := filepath.Join(s.ToolchainsDir, "hls-1.8.0-ghc-9.2.5")
	idle := filepath.Join(s.ToolchainsDir, "hls-1.9.0-ghc-9.4.4")
	mkfile(t, filepath.Join(busy, "ghc"), 1)
	mkfile(t, filepath.Join(idle, "ghc"), 1)

	release, err := s.AcquireToolchainLock(context.Background(), filepath.Base(busy), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	var out bytes.Buffer
	var res cleanResult
	cleanToolchains(s, &out, &res)
	if res.Removed != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v\n%s", res, out.String())
	}
	if _, err := os.Stat(busy); err != nil {
		t.Fatal("toolchain in use was removed")
	}
	if _, err := os.Stat(idle); !os.IsNotExist(err) {
		t.Fatal("idle toolchain kept")
	}
	if !strings.Contains(out.String(), "skipping "+busy) {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestMetadataHealth(t *testing.T) {
	md := metadata.ReleaseMetadata{"1.8.0": {metadata.ArchX86_64: {metadata.PlatformLinux: {"9.2.5"}}}}
	tests := []struct {
		name string
		got  metadata.Retrieved
		err  error
		want string
	}{
		{"fresh", metadata.Retrieved{Metadata: md}, nil, "ok"},
		{"cache fallback", metadata.Retrieved{Metadata: md, FetchErr: errors.New("dial tcp: timeout")}, nil, "warning"},
		{"no builds", metadata.Retrieved{Metadata: metadata.ReleaseMetadata{}}, nil, "warning"},
		{"unavailable", metadata.Retrieved{}, errors.New("no cache"), "error"},
	}
	for _, tt := range tests {
		got := metadataHealth(metadata.PlatformLinux, metadata.ArchX86_64, tt.got, tt.err)
		if got.Status != tt.want {
			t.Errorf("%s: status %q, want %q (%s)", tt.name, got.Status, tt.want, got.Summary)
		}
	}
}
