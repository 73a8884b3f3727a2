package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hlsup/internal/config"
	"hlsup/internal/hlserr"
	"hlsup/internal/metadata"
	"hlsup/internal/paths"
	"hlsup/internal/process"
	"hlsup/internal/progress"
	"hlsup/internal/tools"
)

// fakeToolchain is an in-memory ghcup.
type fakeToolchain struct {
	installed map[tools.Kind][]string
	available map[tools.Kind][]tools.ToolInfo
	variants  map[string][]string
	installs  []tools.Toolchain
	dirs      []string
	upgraded  bool
}

func (f *fakeToolchain) ListTool(_ context.Context, kind tools.Kind, category tools.Category) ([]tools.ToolInfo, error) {
	switch category {
	case tools.CategoryInstalled:
		var out []tools.ToolInfo
		for _, v := range f.installed[kind] {
			out = append(out, tools.ToolInfo{Kind: kind, Version: v})
		}
		return out, nil
	case tools.CategoryAvailable:
		return f.available[kind], nil
	}
	return nil, nil
}

func (f *fakeToolchain) LatestAvailable(ctx context.Context, kind tools.Kind, tag string) (tools.ToolInfo, bool, error) {
	var found tools.ToolInfo
	ok := false
	for _, info := range f.available[kind] {
		if info.HasTag(tag) {
			found, ok = info, true
		}
	}
	return found, ok, nil
}

func (f *fakeToolchain) FindLatestUserInstalledTool(ctx context.Context, kind tools.Kind) (tools.ToolInfo, error) {
	if info, ok, _ := f.LatestAvailable(ctx, kind, "latest"); ok {
		return info, nil
	}
	return tools.ToolInfo{}, &hlserr.ManagerError{Message: "nothing for " + string(kind)}
}

func (f *fakeToolchain) IsInstalled(_ context.Context, kind tools.Kind, v string) (bool, error) {
	for _, have := range f.installed[kind] {
		if have == v {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeToolchain) Upgrade(_ context.Context, enabled bool, _ progress.Sink) error {
	f.upgraded = enabled
	return nil
}

func (f *fakeToolchain) InstalledServerVariants(context.Context) (map[string][]string, error) {
	return f.variants, nil
}

func (f *fakeToolchain) Install(_ context.Context, tc tools.Toolchain, dir string, _ progress.Sink) (string, error) {
	f.installs = append(f.installs, tc)
	f.dirs = append(f.dirs, dir)
	launcher := filepath.Join(dir, tools.BinaryName(tools.KindHLS))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return launcher, os.WriteFile(launcher, nil, 0o755)
}

// fakeRunner answers by executable base name.
type fakeRunner struct {
	mu      sync.Mutex
	answers map[string]func(args []string, opts process.Options) (process.Result, error)
	calls   []string
}

func (r *fakeRunner) Run(_ context.Context, binary string, args []string, opts process.Options) (process.Result, error) {
	name := strings.TrimSuffix(filepath.Base(binary), ".exe")
	r.mu.Lock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	r.mu.Unlock()
	if answer, ok := r.answers[name]; ok {
		return answer(args, opts)
	}
	return process.Result{}, &process.ExitError{Command: name, ExitCode: -1, Err: errors.New("not found")}
}

func stdout(s string) func([]string, process.Options) (process.Result, error) {
	return func([]string, process.Options) (process.Result, error) {
		return process.Result{Stdout: s}, nil
	}
}

func failing(stderr string) func([]string, process.Options) (process.Result, error) {
	return func([]string, process.Options) (process.Result, error) {
		return process.Result{}, &process.ExitError{Command: "x", ExitCode: 1, Stderr: stderr}
	}
}

type fakeMetadata struct {
	md  metadata.ReleaseMetadata
	err error
	// stale simulates a cache fallback after this network error.
	stale error
}

func (f fakeMetadata) Retrieve(context.Context, string) (metadata.Retrieved, error) {
	if f.err != nil {
		return metadata.Retrieved{}, f.err
	}
	return metadata.Retrieved{Metadata: f.md, FetchErr: f.stale}, nil
}

type fakePrompter struct {
	mode    config.ManageMode
	confirm bool
	asked   [][]tools.ToolInfo
}

func (p *fakePrompter) ChooseMode(context.Context) (config.ManageMode, error) { return p.mode, nil }

func (p *fakePrompter) ConfirmInstall(_ context.Context, missing []tools.ToolInfo) (bool, error) {
	p.asked = append(p.asked, missing)
	return p.confirm, nil
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Infof(string, ...any)  {}
func (l *recordingLogger) Errorf(string, ...any) {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

type recordingObserver struct {
	events   []string
	warnings []string
}

func (o *recordingObserver) Report(progress.Update) {}
func (o *recordingObserver) Entered(s State)        { o.events = append(o.events, "enter "+s.String()) }
func (o *recordingObserver) Finished(s State, _ string) {
	o.events = append(o.events, "done "+s.String())
}
func (o *recordingObserver) Failed(s State, _ error) { o.events = append(o.events, "fail "+s.String()) }
func (o *recordingObserver) Warned(s State, msg string) {
	o.warnings = append(o.warnings, s.String()+": "+msg)
}

var testMetadata = metadata.ReleaseMetadata{
	"1.8.0": {metadata.ArchX86_64: {metadata.PlatformLinux: {"9.0.2", "9.2.5"}}},
	"1.9.0": {metadata.ArchX86_64: {metadata.PlatformLinux: {"9.4.4"}}},
}

type fixture struct {
	o        *Orchestrator
	tc       *fakeToolchain
	runner   *fakeRunner
	prompter *fakePrompter
	logger   *recordingLogger
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	tc := &fakeToolchain{
		installed: map[tools.Kind][]string{
			tools.KindGHC:   {"9.2.5"},
			tools.KindCabal: {"3.8.1.0"},
			tools.KindStack: {"2.9.3"},
			tools.KindHLS:   {"1.8.0"},
		},
	}
	runner := &fakeRunner{answers: map[string]func([]string, process.Options) (process.Result, error){
		tools.WrapperName: stdout("9.2.5\n"),
	}}
	f := &fixture{
		tc:       tc,
		runner:   runner,
		prompter: &fakePrompter{mode: config.ModeGHCup, confirm: true},
		logger:   &recordingLogger{},
		observer: &recordingObserver{},
	}
	cfg := config.Default()
	cfg.ManageHLS = config.ModeGHCup
	f.o = &Orchestrator{
		Config:       cfg,
		Storage:      paths.Storage{Root: root, BinDir: filepath.Join(root, "bin"), ToolchainsDir: filepath.Join(root, "toolchains"), LocksDir: filepath.Join(root, "locks")},
		Workspace:    root,
		Platform:     metadata.PlatformLinux,
		Arch:         metadata.ArchX86_64,
		Environ:      []string{"PATH="},
		Runner:       runner,
		Metadata:     fakeMetadata{md: testMetadata},
		Prompter:     f.prompter,
		Locate:       func(tools.LocateOptions) (string, error) { return "/usr/bin/ghcup", nil },
		NewToolchain: func(string) Toolchain { return tc },
		Logger:       f.logger,
		Observer:     f.observer,
	}
	return f
}

func TestResolveSelectsSupportingServer(t *testing.T) {
	f := newFixture(t)
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(f.tc.installs) != 2 {
		t.Fatalf("installs = %d, want bootstrap and project", len(f.tc.installs))
	}
	want := tools.Toolchain{HLS: "1.8.0", GHC: "9.2.5", Cabal: "3.8.1.0", Stack: "2.9.3"}
	if diff := cmp.Diff(want, f.tc.installs[1]); diff != "" {
		t.Fatalf("project install mismatch (-want +got):\n%s", diff)
	}
	wantDir := filepath.Join(f.o.Storage.ToolchainsDir, "hls-1.8.0-ghc-9.2.5")
	if res.InstallDir != wantDir || f.tc.dirs[1] != wantDir {
		t.Fatalf("install dir = %q / %q, want %q", res.InstallDir, f.tc.dirs[1], wantDir)
	}
	if res.Launcher != filepath.Join(wantDir, tools.BinaryName(tools.KindHLS)) {
		t.Fatalf("launcher = %q", res.Launcher)
	}
	if !f.tc.upgraded {
		t.Fatal("expected ghcup upgrade")
	}
	if len(f.prompter.asked) != 0 {
		t.Fatalf("nothing missing, yet prompted %v", f.prompter.asked)
	}
}

func TestResolveStatesInOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var want []string
	for _, s := range Steps {
		want = append(want, "enter "+s.String(), "done "+s.String())
	}
	want = append(want, "enter ready", "done ready")
	if diff := cmp.Diff(want, f.observer.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvePathMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit")
	}
	f := newFixture(t)
	bin := t.TempDir()
	wrapper := filepath.Join(bin, tools.WrapperName)
	if err := os.WriteFile(wrapper, nil, 0o755); err != nil {
		t.Fatal(err)
	}
	f.o.Config.ManageHLS = config.ModePATH
	f.o.Environ = []string{"PATH=" + bin}
	f.o.NewToolchain = func(string) Toolchain {
		t.Fatal("PATH mode must not touch ghcup")
		return nil
	}
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Launcher != wrapper || res.Mode != config.ModePATH {
		t.Fatalf("result = %+v", res)
	}
	if got := f.observer.events[len(f.observer.events)-1]; got != "done ready" {
		t.Fatalf("last event %q", got)
	}
}

func TestResolvePathModeMissing(t *testing.T) {
	f := newFixture(t)
	f.o.Config.ManageHLS = config.ModePATH
	_, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	var missing *hlserr.MissingToolError
	if !errors.As(err, &missing) || missing.Tool != "haskell-language-server" {
		t.Fatalf("expected missing server, got %v", err)
	}
	var se *StateError
	if !errors.As(err, &se) || se.State != DiscoverManager {
		t.Fatalf("expected failure in discover manager, got %v", err)
	}
}

func TestResolvePromptsForModeAndPersists(t *testing.T) {
	f := newFixture(t)
	f.o.Config.ManageHLS = config.ModeUnset
	var saved config.ManageMode
	f.o.ModeStore = ModeStoreFunc(func(m config.ManageMode) error {
		saved = m
		return nil
	})
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if saved != config.ModeGHCup || res.Mode != config.ModeGHCup {
		t.Fatalf("saved %q, result mode %q", saved, res.Mode)
	}
	if f.o.Config.ManageHLS != config.ModeUnset {
		t.Fatal("Resolve must not mutate the orchestrator's config")
	}
}

func TestResolveDeclinedDownload(t *testing.T) {
	f := newFixture(t)
	f.tc.installed = map[tools.Kind][]string{}
	f.tc.available = map[tools.Kind][]tools.ToolInfo{
		tools.KindHLS:   {{Kind: tools.KindHLS, Version: "1.8.0", Tags: []string{"recommended"}}},
		tools.KindGHC:   {{Kind: tools.KindGHC, Version: "9.2.5", Tags: []string{"recommended"}}},
		tools.KindCabal: {{Kind: tools.KindCabal, Version: "3.8.1.0", Tags: []string{"latest"}}},
		tools.KindStack: {{Kind: tools.KindStack, Version: "2.9.3", Tags: []string{"recommended"}}},
	}
	f.prompter.confirm = false
	_, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	var missing *hlserr.MissingToolError
	if !errors.As(err, &missing) || missing.Tool != "haskell-language-server" {
		t.Fatalf("expected MissingToolError for the first missing tool, got %v", err)
	}
	if len(f.prompter.asked) != 1 || len(f.prompter.asked[0]) != 4 {
		t.Fatalf("asked %v", f.prompter.asked)
	}
	if len(f.tc.installs) != 0 {
		t.Fatal("nothing may be installed after declining")
	}
}

func TestResolveNoPromptWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.tc.installed[tools.KindHLS] = nil
	f.tc.available = map[tools.Kind][]tools.ToolInfo{
		tools.KindHLS: {{Kind: tools.KindHLS, Version: "1.8.0", Tags: []string{"latest"}}},
	}
	off := false
	f.o.Config.PromptBeforeDownloads = &off
	f.prompter.confirm = false
	if _, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(f.prompter.asked) != 0 {
		t.Fatal("prompted with prompts disabled")
	}
	if f.tc.installs[0].HLS != "1.8.0" {
		t.Fatalf("bootstrap hls = %q", f.tc.installs[0].HLS)
	}
}

func TestResolveWrapperMissingTool(t *testing.T) {
	f := newFixture(t)
	f.runner.answers[tools.WrapperName] = failing("Cradle requires cabal but couldn't find it")
	_, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	var missing *hlserr.MissingToolError
	if !errors.As(err, &missing) || missing.Tool != "cabal" {
		t.Fatalf("expected missing cabal, got %v", err)
	}
	for _, c := range f.runner.calls {
		if strings.HasPrefix(c, "ghc ") {
			t.Fatal("a missing tool must not trigger the ghc fallback")
		}
	}
}

func TestResolveCompilerFallback(t *testing.T) {
	f := newFixture(t)
	f.runner.answers[tools.WrapperName] = failing("something odd happened")
	f.runner.answers["ghc"] = stdout("9.2.5\n")
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Toolchain.GHC != "9.2.5" {
		t.Fatalf("ghc = %q", res.Toolchain.GHC)
	}
	if len(f.logger.warns) == 0 {
		t.Fatal("expected a warning about the fallback")
	}
	if len(f.observer.warnings) != 1 || !strings.HasPrefix(f.observer.warnings[0], "determine project compiler: ") ||
		!strings.Contains(f.observer.warnings[0], "ghc --numeric-version") {
		t.Fatalf("observer warnings = %q, want one compiler fallback warning", f.observer.warnings)
	}
}

func TestResolveWarnsOnCachedMetadata(t *testing.T) {
	f := newFixture(t)
	f.o.Metadata = fakeMetadata{md: testMetadata, stale: errors.New("dial tcp: no route to host")}
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Toolchain.HLS != "1.8.0" {
		t.Fatalf("hls = %q", res.Toolchain.HLS)
	}
	want := []string{"choose server version: Couldn't get the latest release metadata, using the cached copy: dial tcp: no route to host"}
	if diff := cmp.Diff(want, f.observer.warnings); diff != "" {
		t.Fatalf("observer warnings (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("result warnings = %q", res.Warnings)
	}
}

func TestResolveWithoutFallbacksDoesNotWarn(t *testing.T) {
	f := newFixture(t)
	if _, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(f.observer.warnings) != 0 {
		t.Fatalf("unexpected warnings %q", f.observer.warnings)
	}
}

func TestResolveWaitsForToolchainInUse(t *testing.T) {
	f := newFixture(t)
	release, err := f.o.Storage.AcquireToolchainLock(context.Background(), "hls-1.8.0-ghc-9.2.5", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = f.o.Resolve(ctx, Request{WorkDir: t.TempDir()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline while the toolchain is locked", err)
	}
	if len(f.tc.installs) != 1 {
		t.Fatalf("installs = %d, want only the bootstrap", len(f.tc.installs))
	}

	release()
	if _, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()}); err != nil {
		t.Fatalf("Resolve after release: %v", err)
	}
}

func TestResolveWrapperRunsInProjectWithBootstrapPath(t *testing.T) {
	f := newFixture(t)
	project := t.TempDir()
	var gotDir, gotPath string
	f.runner.answers[tools.WrapperName] = func(_ []string, opts process.Options) (process.Result, error) {
		gotDir, gotPath = opts.Dir, opts.Env["PATH"]
		return process.Result{Stdout: "9.2.5"}, nil
	}
	if _, err := f.o.Resolve(context.Background(), Request{WorkDir: project}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotDir != project {
		t.Fatalf("dir = %q", gotDir)
	}
	if !strings.HasPrefix(gotPath, f.tc.dirs[0]) {
		t.Fatalf("PATH %q does not start with bootstrap dir %q", gotPath, f.tc.dirs[0])
	}
}

func TestResolveUnsupportedCompiler(t *testing.T) {
	f := newFixture(t)
	f.runner.answers[tools.WrapperName] = stdout("8.6.5")
	_, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	var unsupported *hlserr.UnsupportedCompilerError
	if !errors.As(err, &unsupported) || unsupported.Version != "8.6.5" {
		t.Fatalf("expected unsupported 8.6.5, got %v", err)
	}
	if link, ok := hlserr.DocLink(err); !ok || link == "" {
		t.Fatal("expected a documentation link")
	}
}

func TestResolveLocalVariantWins(t *testing.T) {
	f := newFixture(t)
	f.tc.variants = map[string][]string{"1.9.0": {"9.2.5"}}
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Toolchain.HLS != "1.9.0" {
		t.Fatalf("hls = %q, want locally built 1.9.0", res.Toolchain.HLS)
	}
}

func TestResolveMetadataFailure(t *testing.T) {
	netErr := &hlserr.NetworkError{URL: "https://example.invalid", Err: errors.New("offline")}

	f := newFixture(t)
	f.o.Metadata = fakeMetadata{err: netErr}
	_, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	var ne *hlserr.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected network error, got %v", err)
	}

	f = newFixture(t)
	f.o.Metadata = fakeMetadata{err: netErr}
	f.tc.variants = map[string][]string{"1.7.0": {"9.2.5"}}
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve with local candidate: %v", err)
	}
	if res.Toolchain.HLS != "1.7.0" {
		t.Fatalf("hls = %q", res.Toolchain.HLS)
	}
}

func TestResolvePinnedServer(t *testing.T) {
	f := newFixture(t)
	f.o.Config.Toolchain = map[string]string{"hls": "1.5.1", "cabal": "3.6.2.0"}
	f.o.Metadata = fakeMetadata{err: errors.New("must not be consulted")}
	res, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Toolchain.HLS != "1.5.1" || res.Toolchain.Cabal != "3.6.2.0" {
		t.Fatalf("toolchain = %+v", res.Toolchain)
	}
}

type recordingDownloader struct{ src, dest string }

func (d *recordingDownloader) DownloadToFile(_ context.Context, _, src, dest string, _ progress.Sink) (bool, error) {
	d.src, d.dest = src, dest
	return true, nil
}

func TestResolveDownloadsGHCup(t *testing.T) {
	f := newFixture(t)
	d := &recordingDownloader{}
	f.o.Downloader = d
	f.o.Locate = func(tools.LocateOptions) (string, error) { return "", hlserr.NewMissingTool("ghcup") }
	var used string
	f.o.NewToolchain = func(p string) Toolchain {
		used = p
		return f.tc
	}
	if _, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.src != tools.DownloadBase+"x86_64-linux-ghcup" {
		t.Fatalf("src = %q", d.src)
	}
	if used != d.dest || filepath.Dir(used) != f.o.Storage.BinDir {
		t.Fatalf("ghcup path %q, downloaded to %q", used, d.dest)
	}
}

func TestResolveExplicitGHCupMissingIsFatal(t *testing.T) {
	f := newFixture(t)
	f.o.Config.GHCupExecutablePath = "/nope/ghcup"
	f.o.Locate = tools.Locate
	_, err := f.o.Resolve(context.Background(), Request{WorkDir: t.TempDir()})
	var missing *hlserr.MissingToolError
	if !errors.As(err, &missing) || missing.Tool != "ghcup" {
		t.Fatalf("expected missing ghcup, got %v", err)
	}
}

func TestRequestDir(t *testing.T) {
	if got := (Request{File: filepath.Join("a", "b", "Main.hs")}).dir(); got != filepath.Join("a", "b") {
		t.Fatalf("dir = %q", got)
	}
	if got := (Request{WorkDir: "w", File: "x/y.hs"}).dir(); got != "w" {
		t.Fatalf("dir = %q", got)
	}
}
