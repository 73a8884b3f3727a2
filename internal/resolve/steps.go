package resolve

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"hlsup/internal/config"
	"hlsup/internal/hlserr"
	"hlsup/internal/metadata"
	"hlsup/internal/paths"
	"hlsup/internal/process"
	"hlsup/internal/progress"
	"hlsup/internal/tools"
	"hlsup/internal/version"
)

// pickBootstrap chooses the version of kind used to interrogate the project:
// a pin, else the latest installed, else the recommended release, else
// whatever ghcup reports as set or latest.
func (r *run) pickBootstrap(ctx context.Context, kind tools.Kind) (string, error) {
	if pin := r.cfg.Pinned(string(kind)); pin != "" {
		return pin, nil
	}
	installed, err := r.manager.ListTool(ctx, kind, tools.CategoryInstalled)
	if err != nil {
		return "", err
	}
	if len(installed) > 0 {
		return installed[len(installed)-1].Version, nil
	}
	if info, ok, err := r.manager.LatestAvailable(ctx, kind, "recommended"); err != nil {
		return "", err
	} else if ok {
		return info.Version, nil
	}
	info, err := r.manager.FindLatestUserInstalledTool(ctx, kind)
	if err != nil {
		return "", err
	}
	return info.Version, nil
}

func (r *run) bootstrapToolchain(ctx context.Context) (bool, error) {
	for _, kind := range tools.Kinds {
		v, err := r.pickBootstrap(ctx, kind)
		if err != nil {
			return false, fmt.Errorf("pick bootstrap %s: %w", kind, err)
		}
		r.boot.Set(kind, v)
	}
	r.logger.Infof("bootstrap toolchain: %s", r.boot)

	if err := r.confirmDownloads(ctx, r.boot); err != nil {
		return false, err
	}
	r.bootDir = r.o.Storage.ToolchainDir("bootstrap-" + r.boot.DirName())
	release, err := r.lockToolchain(ctx, r.bootDir)
	if err != nil {
		return false, err
	}
	defer release()
	if _, err := r.manager.Install(ctx, r.boot, r.bootDir, r.observer); err != nil {
		return false, err
	}
	return false, nil
}

// lockToolchain holds dir against concurrent installs and clean.
func (r *run) lockToolchain(ctx context.Context, dir string) (func(), error) {
	name := filepath.Base(dir)
	return r.o.Storage.AcquireToolchainLock(ctx, name, func(pid int) {
		progress.Report(r.observer, progress.Message("lock", fmt.Sprintf("waiting for %s, in use by pid %d", name, pid)))
	})
}

// confirmDownloads asks before installing tools ghcup does not have yet.
// Declining is reported as the first missing tool.
func (r *run) confirmDownloads(ctx context.Context, tc tools.Toolchain) error {
	if !r.cfg.PromptBeforeDownloadsValue() {
		return nil
	}
	var missing []tools.ToolInfo
	for _, kind := range tools.Kinds {
		v := tc.Get(kind)
		if v == "" {
			continue
		}
		ok, err := r.manager.IsInstalled(ctx, kind, v)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, tools.ToolInfo{Kind: kind, Version: v})
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if r.o.Prompter == nil {
		return fmt.Errorf("%s %s needs confirmation to download: %w", missing[0].Kind, missing[0].Version, hlserr.NewMissingTool(tools.CanonicalName(missing[0].Kind)))
	}
	ok, err := r.o.Prompter.ConfirmInstall(ctx, missing)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Infof("user declined to download %d tool(s)", len(missing))
		return hlserr.NewMissingTool(tools.CanonicalName(missing[0].Kind))
	}
	return nil
}

func (r *run) determineCompiler(ctx context.Context) (bool, error) {
	dir := r.req.dir()
	env := map[string]string{"PATH": process.PrependPath(r.env, r.bootDir)}
	for k, v := range r.cfg.ServerEnvironment {
		if _, ok := env[k]; !ok {
			env[k] = v
		}
	}
	wrapper := filepath.Join(r.bootDir, tools.BinaryName(tools.KindHLS))
	res, err := r.o.Runner.Run(ctx, wrapper, []string{"--project-ghc-version"}, process.Options{
		Dir:      dir,
		Env:      env,
		Title:    "Working out the project GHC version",
		Progress: r.observer,
	})
	if err == nil && res.Output() != "" {
		r.ghc = res.Output()
		return false, nil
	}
	if classified := classify(err); classified != nil {
		return false, classified
	}
	r.logger.Warnf("%s --project-ghc-version failed (%v), asking ghc directly", tools.WrapperName, err)
	r.warn(DetermineProjectCompilerVersion, fmt.Sprintf("%s --project-ghc-version failed, falling back to ghc --numeric-version: %s", tools.WrapperName, firstLine(err)))

	ghc := filepath.Join(r.bootDir, tools.BinaryName(tools.KindGHC))
	if r.cfg.CompilerExecutablePath != "" {
		p, perr := config.ResolvePath(r.cfg.CompilerExecutablePath, r.o.Workspace)
		if perr != nil {
			return false, perr
		}
		ghc = p
	}
	res, ferr := r.o.Runner.Run(ctx, ghc, []string{"--numeric-version"}, process.Options{
		Dir:   dir,
		Env:   env,
		Title: "Asking ghc for its version",
	})
	if ferr != nil {
		if classified := classify(ferr); classified != nil {
			return false, classified
		}
		return false, fmt.Errorf("determine project ghc version: %w", errors.Join(err, ferr))
	}
	if res.Output() == "" {
		return false, errors.New("ghc --numeric-version printed nothing")
	}
	r.ghc = res.Output()
	return false, nil
}

// classify turns a failed run whose stderr names a missing tool into a
// MissingToolError.
func classify(err error) error {
	var exit *process.ExitError
	if !errors.As(err, &exit) {
		return nil
	}
	return hlserr.Classify(exit.Stderr)
}

func (r *run) chooseServer(ctx context.Context) (bool, error) {
	if pin := r.cfg.Pinned(string(tools.KindHLS)); pin != "" {
		r.logger.Infof("hls pinned to %s", pin)
		r.hls = pin
		return false, nil
	}

	candidates := map[string][]string{}
	got, netErr := r.o.Metadata.Retrieve(ctx, r.o.Storage.Root)
	switch {
	case netErr != nil:
		r.logger.Warnf("release metadata unavailable: %v", netErr)
	case got.Stale():
		r.warn(ChooseServerVersion, fmt.Sprintf("Couldn't get the latest release metadata, using the cached copy: %s", firstLine(got.FetchErr)))
	}
	if netErr == nil {
		for hls, ghcs := range metadata.ServersSupporting(metadata.SupportedHLSPerGHC(r.o.Platform, r.o.Arch, got.Metadata), r.ghc) {
			candidates[hls] = ghcs
		}
	}
	local, err := r.manager.InstalledServerVariants(ctx)
	if err != nil {
		r.logger.Warnf("could not scan locally built servers: %v", err)
	}
	for hls, ghcs := range metadata.ServersSupporting(local, r.ghc) {
		candidates[hls] = ghcs
	}

	if len(candidates) == 0 {
		if netErr != nil {
			return false, netErr
		}
		return false, hlserr.NewUnsupportedCompiler(r.ghc)
	}
	versions := make([]string, 0, len(candidates))
	for hls := range candidates {
		versions = append(versions, hls)
	}
	sort.Strings(versions)
	version.Sort(versions)
	r.logger.Debugf("servers supporting ghc %s: %v", r.ghc, versions)
	r.hls = versions[len(versions)-1]
	return false, nil
}

func (r *run) installProject(ctx context.Context) (bool, error) {
	tc := tools.Toolchain{HLS: r.hls, GHC: r.ghc, Cabal: r.boot.Cabal, Stack: r.boot.Stack}
	if err := r.confirmDownloads(ctx, tc); err != nil {
		return false, err
	}
	dir := r.o.Storage.ToolchainDir(fmt.Sprintf("hls-%s-ghc-%s", r.hls, r.ghc))
	release, err := r.lockToolchain(ctx, dir)
	if err != nil {
		return false, err
	}
	defer release()
	launcher, err := r.manager.Install(ctx, tc, dir, r.observer)
	if err != nil {
		return false, err
	}
	if ok, _ := paths.FileExists(launcher); !ok {
		return false, &hlserr.ManagerError{Message: fmt.Sprintf("install finished but %s is missing", launcher)}
	}
	r.result.Launcher = launcher
	r.result.InstallDir = dir
	r.result.Toolchain = tc
	return false, nil
}

// firstLine keeps warnings to one line; process errors carry captured output.
func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
