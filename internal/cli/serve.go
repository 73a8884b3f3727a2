package cli

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"hlsup/internal/resolve"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [-- server args]",
		Short: "Resolve the language server and run it over stdio",
		Long: "Resolves the toolchain like `resolve`, then runs the server with " +
			"--lsp, connecting it to this process's stdin and stdout. Progress goes " +
			"to stderr so editors can use hlsup as the server command.",
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv(e, &err)

	res, err := resolveWithProgress(cmd, e, resolve.Request{WorkDir: e.Workspace})
	if err != nil {
		return err
	}

	serverArgs := append([]string{"--lsp"}, args...)
	e.Logger.Infof("starting %s %v", res.Launcher, serverArgs)
	server := exec.CommandContext(cmd.Context(), res.Launcher, serverArgs...)
	server.Dir = e.Workspace
	server.Env = launchEnv(e, res)
	server.Stdin = cmd.InOrStdin()
	server.Stdout = cmd.OutOrStdout()
	server.Stderr = cmd.ErrOrStderr()
	server.WaitDelay = 2 * time.Second
	if err := server.Run(); err != nil {
		return fmt.Errorf("language server: %w", err)
	}
	return nil
}
