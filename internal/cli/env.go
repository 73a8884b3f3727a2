package cli

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"hlsup/internal/config"
	"hlsup/internal/fetch"
	"hlsup/internal/logx"
	"hlsup/internal/metadata"
	"hlsup/internal/paths"
	"hlsup/internal/process"
	"hlsup/internal/tools"
)

// env is what every command needs: the workspace, its config, storage
// layout and a log file.
type env struct {
	Workspace  string
	ConfigFile string
	Config     config.Config
	Storage    paths.Storage
	Logger     logx.Logger
	closer     io.Closer
}

func (e *env) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// loadEnv resolves the workspace and config, creates the storage layout and
// opens the log file.
func loadEnv(cmd *cobra.Command) (*env, error) {
	workspace, err := paths.ResolveWorkspace(workspaceDir)
	if err != nil {
		return nil, err
	}
	exists, err := paths.DirExists(workspace)
	if err != nil {
		return nil, fmt.Errorf("stat workspace: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("workspace directory does not exist: %s", workspace)
	}

	cfgFile := paths.ConfigFile(workspace, configPath)
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	level, err := logx.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	storage, err := paths.ResolveStorage(cfg, workspace)
	if err != nil {
		return nil, err
	}
	if err := storage.Ensure(); err != nil {
		return nil, err
	}

	logger, closer, err := logx.New(storage.LogsDir, level)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: logging disabled: %v\n", err)
		return &env{Workspace: workspace, ConfigFile: cfgFile, Config: cfg, Storage: storage, Logger: logx.Nop()}, nil
	}
	logger.Infof("workspace %s, config %s, storage %s", workspace, cfgFile, storage.Root)
	return &env{
		Workspace:  workspace,
		ConfigFile: cfgFile,
		Config:     cfg,
		Storage:    storage,
		Logger:     logger,
		closer:     closer,
	}, nil
}

func (e *env) runner() *process.Runner {
	return &process.Runner{BaseEnv: e.Config.ServerEnvironment, Logger: e.Logger}
}

func (e *env) httpClient() *fetch.Client {
	return fetch.NewClient(http.DefaultClient, e.Logger)
}

func (e *env) metadataClient() *metadata.Client {
	return &metadata.Client{URL: e.Config.ReleaseMetadataURL, HTTP: e.httpClient(), Logger: e.Logger}
}

// manager locates ghcup without downloading it.
func (e *env) manager() (*tools.Manager, error) {
	runner := e.runner()
	path, err := tools.Locate(tools.LocateOptions{
		ExplicitPath: e.Config.GHCupExecutablePath,
		Workspace:    e.Workspace,
		Env:          runner.Env(nil),
		ExtraDirs:    []string{e.Storage.BinDir},
	})
	if err != nil {
		return nil, err
	}
	return tools.NewManager(path, runner, e.Logger), nil
}

func closeEnv(e *env, err *error) {
	if cerr := e.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
