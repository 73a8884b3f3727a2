package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hlsup/internal/config"
	"hlsup/internal/hlserr"
	"hlsup/internal/logx"
	"hlsup/internal/metadata"
	"hlsup/internal/paths"
	"hlsup/internal/process"
	"hlsup/internal/tools"
)

// Request names the project a launcher is resolved for.
type Request struct {
	// WorkDir is the project root.
	WorkDir string
	// File optionally names the document that triggered the run. When
	// WorkDir is empty its directory is used instead.
	File string
}

func (r Request) dir() string {
	if r.WorkDir != "" || r.File == "" {
		return r.WorkDir
	}
	return filepath.Dir(r.File)
}

// Result is a launcher ready to be spawned.
type Result struct {
	Mode     config.ManageMode `json:"mode"`
	Launcher string            `json:"launcher"`
	// InstallDir is empty in PATH mode.
	InstallDir string          `json:"install_dir,omitempty"`
	Toolchain  tools.Toolchain `json:"toolchain"`
	// Warnings lists the fallbacks taken on the way.
	Warnings []string `json:"warnings,omitempty"`
}

// Orchestrator resolves a server launcher for a project. A zero value is not
// usable; Runner, Metadata, Downloader and NewToolchain are required.
type Orchestrator struct {
	Config    config.Config
	Storage   paths.Storage
	Workspace string
	Platform  metadata.Platform
	Arch      metadata.Arch
	// Environ is the base environment of spawned tools. Nil means os.Environ.
	Environ []string

	Runner     process.Runs
	Metadata   MetadataSource
	Downloader tools.Downloader
	Prompter   Prompter
	ModeStore  ModeStore
	// Locate finds ghcup; nil uses tools.Locate.
	Locate       func(tools.LocateOptions) (string, error)
	NewToolchain func(ghcupPath string) Toolchain

	Logger   logx.Logger
	Observer Observer
}

// run carries the state of one resolution.
type run struct {
	o        *Orchestrator
	cfg      config.Config
	req      Request
	env      []string
	manager  Toolchain
	boot     tools.Toolchain
	bootDir  string
	ghc      string
	hls      string
	result   Result
	logger   logx.Logger
	observer Observer
}

// Resolve runs every state in order and returns the launcher, or the error
// of the first failing state wrapped in a StateError.
func (o *Orchestrator) Resolve(ctx context.Context, req Request) (Result, error) {
	r := &run{
		o:        o,
		cfg:      o.Config,
		req:      req,
		logger:   logx.OrNop(o.Logger),
		observer: o.Observer,
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	base := o.Environ
	if base == nil {
		base = os.Environ()
	}
	r.env = process.MergeEnv(base, r.cfg.ServerEnvironment)

	steps := map[State]func(context.Context) (bool, error){
		DiscoverManager:                 r.discoverManager,
		BootstrapToolchain:              r.bootstrapToolchain,
		DetermineProjectCompilerVersion: r.determineCompiler,
		ChooseServerVersion:             r.chooseServer,
		InstallProjectToolchain:         r.installProject,
	}
	for _, state := range Steps {
		r.observer.Entered(state)
		r.logger.Debugf("entering %s", state)
		done, err := steps[state](ctx)
		if err != nil {
			r.logger.Errorf("%s failed: %v", state, err)
			r.observer.Failed(state, err)
			return Result{}, &StateError{State: state, Err: err}
		}
		r.observer.Finished(state, r.detail(state))
		if done {
			break
		}
	}
	r.observer.Entered(Ready)
	r.observer.Finished(Ready, r.result.Launcher)
	r.logger.Infof("resolved launcher %s", r.result.Launcher)
	return r.result, nil
}

// warn records a fallback the user should know about.
func (r *run) warn(state State, message string) {
	r.result.Warnings = append(r.result.Warnings, message)
	r.observer.Warned(state, message)
}

func (r *run) detail(state State) string {
	switch state {
	case DiscoverManager:
		return string(r.cfg.ManageHLS)
	case BootstrapToolchain:
		return r.boot.String()
	case DetermineProjectCompilerVersion:
		return "ghc " + r.ghc
	case ChooseServerVersion:
		return "hls " + r.hls
	case InstallProjectToolchain:
		return r.result.InstallDir
	}
	return ""
}

func (r *run) discoverManager(ctx context.Context) (bool, error) {
	if r.cfg.ManageHLS == config.ModeUnset {
		if r.o.Prompter == nil {
			return false, errors.New("manage_hls is not set and no prompt is available")
		}
		mode, err := r.o.Prompter.ChooseMode(ctx)
		if err != nil {
			return false, fmt.Errorf("choose management mode: %w", err)
		}
		r.cfg.ManageHLS = mode
		if r.o.ModeStore != nil {
			if err := r.o.ModeStore.SaveMode(mode); err != nil {
				r.logger.Warnf("could not persist manage_hls=%s: %v", mode, err)
			}
		}
	}
	r.result.Mode = r.cfg.ManageHLS

	switch r.cfg.ManageHLS {
	case config.ModePATH:
		launcher, err := r.findOnPath()
		if err != nil {
			return false, err
		}
		r.result.Launcher = launcher
		return true, nil
	case config.ModeGHCup:
		return false, r.setupGHCup(ctx)
	}
	return false, fmt.Errorf("unknown manage_hls mode %q", r.cfg.ManageHLS)
}

// findOnPath is the PATH-mode escape hatch: the configured server binary or
// the wrapper on PATH, nothing is installed.
func (r *run) findOnPath() (string, error) {
	missing := hlserr.NewMissingTool(tools.CanonicalName(tools.KindHLS))
	if r.cfg.ServerExecutablePath != "" {
		p, err := config.ResolvePath(r.cfg.ServerExecutablePath, r.o.Workspace)
		if err != nil {
			return "", err
		}
		if ok, _ := paths.FileExists(p); !ok {
			return "", fmt.Errorf("server_executable_path %s does not exist: %w", p, missing)
		}
		return p, nil
	}
	p, err := process.LookPath(tools.WrapperName, r.env)
	if err != nil {
		return "", missing
	}
	return p, nil
}

func (r *run) setupGHCup(ctx context.Context) error {
	locate := r.o.Locate
	if locate == nil {
		locate = tools.Locate
	}
	ghcup, err := locate(tools.LocateOptions{
		ExplicitPath: r.cfg.GHCupExecutablePath,
		Workspace:    r.o.Workspace,
		Env:          r.env,
		ExtraDirs:    []string{r.o.Storage.BinDir},
	})
	var missing *hlserr.MissingToolError
	if errors.As(err, &missing) && r.cfg.GHCupExecutablePath == "" {
		r.logger.Infof("ghcup not found, downloading it into %s", r.o.Storage.BinDir)
		ghcup, err = tools.Bootstrap(ctx, r.o.Downloader, r.o.Storage.BinDir, r.o.Platform, r.o.Arch, r.observer)
	}
	if err != nil {
		return err
	}
	r.logger.Infof("using ghcup at %s", ghcup)
	r.manager = r.o.NewToolchain(ghcup)
	return r.manager.Upgrade(ctx, r.cfg.UpgradeGHCup, r.observer)
}
