package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hlsup/internal/config"
	"hlsup/internal/metadata"
	"hlsup/internal/process"
	"hlsup/internal/resolve"
	"hlsup/internal/tools"
	"hlsup/internal/tui"
)

var verboseProgress bool

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [file]",
		Short: "Resolve and install the language server for the workspace",
		Long: "Works out the project's GHC version, picks the newest server release " +
			"supporting it and installs that toolchain through ghcup. Prints the " +
			"launcher path on success.",
		Args: cobra.MaximumNArgs(1),
		RunE: runResolve,
	}
	cmd.Flags().BoolVarP(&verboseProgress, "verbose", "v", false, "Print tool output lines in plain mode")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) (err error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e, &err)

	var file string
	if len(args) == 1 {
		file, err = filepath.Abs(args[0])
		if err != nil {
			return err
		}
	}

	res, err := resolveWithProgress(cmd, e, resolve.Request{WorkDir: e.Workspace, File: file})
	if err != nil {
		return err
	}

	if outputJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Launcher)
	return nil
}

// resolveWithProgress runs one resolution under the workspace lock, rendered
// according to the output mode.
func resolveWithProgress(cmd *cobra.Command, e *env, req resolve.Request) (resolve.Result, error) {
	unlock, err := e.Storage.AcquireWorkspaceLock(cmd.Context(), e.Workspace, lockNotice(cmd, "workspace"))
	if err != nil {
		return resolve.Result{}, err
	}
	defer unlock()

	res, err := resolveLocked(cmd, e, req)
	if err != nil {
		return res, err
	}
	recordUse(e, res)
	return res, nil
}

func resolveLocked(cmd *cobra.Command, e *env, req resolve.Request) (resolve.Result, error) {
	ctx := cmd.Context()
	o, err := newOrchestrator(cmd, e)
	if err != nil {
		return resolve.Result{}, err
	}

	mode := tui.DetectMode(cmd.ErrOrStderr(), plainOutput, outputJSON)
	if mode != tui.ModeTUI {
		if mode == tui.ModePlain {
			o.Observer = tui.NewPlainReporter(cmd.ErrOrStderr(), verboseProgress)
		}
		return o.Resolve(ctx, req)
	}

	// The table owns the terminal, so questions are asked up front.
	if o.Config.ManageHLS == config.ModeUnset {
		mode, err := o.Prompter.ChooseMode(ctx)
		if err != nil {
			return resolve.Result{}, err
		}
		o.Config.ManageHLS = mode
		if err := o.ModeStore.SaveMode(mode); err != nil {
			e.Logger.Warnf("could not persist manage_hls=%s: %v", mode, err)
		}
	}
	if o.Config.PromptBeforeDownloadsValue() && !assumeYes {
		// Confirmation needs the terminal, so the table steps aside.
		o.Observer = tui.NewPlainReporter(cmd.ErrOrStderr(), false)
		return o.Resolve(ctx, req)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	model := tui.NewResolutionModel("Resolving the language server for " + filepath.Base(e.Workspace))
	model.OnInterrupt(cancel)

	var res resolve.Result
	err = tui.RunWithWork(cmd.ErrOrStderr(), model, func(send func(tea.Msg)) error {
		o.Observer = tui.NewStateReporter(send)
		var rerr error
		res, rerr = o.Resolve(runCtx, req)
		return rerr
	})
	return res, err
}

func newOrchestrator(cmd *cobra.Command, e *env) (*resolve.Orchestrator, error) {
	platform, arch, err := metadata.Host()
	if err != nil {
		return nil, err
	}
	runner := e.runner()
	return &resolve.Orchestrator{
		Config:     e.Config,
		Storage:    e.Storage,
		Workspace:  e.Workspace,
		Platform:   platform,
		Arch:       arch,
		Environ:    runner.Env(nil),
		Runner:     runner,
		Metadata:   e.metadataClient(),
		Downloader: e.httpClient(),
		Prompter:   newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr(), assumeYes),
		ModeStore: resolve.ModeStoreFunc(func(mode config.ManageMode) error {
			return config.SaveMode(e.ConfigFile, mode)
		}),
		NewToolchain: func(path string) resolve.Toolchain {
			return tools.NewManager(path, runner, e.Logger)
		},
		Logger: e.Logger,
	}, nil
}

// launchEnv is the environment the server runs with: the configured
// variables and the toolchain's bindir first on PATH.
func launchEnv(e *env, res resolve.Result) []string {
	runner := e.runner()
	if res.InstallDir == "" {
		return runner.Env(nil)
	}
	base := runner.Env(nil)
	return process.MergeEnv(base, map[string]string{"PATH": process.PrependPath(base, res.InstallDir)})
}
