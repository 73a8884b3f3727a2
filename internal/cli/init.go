package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hlsup/internal/config"
	"hlsup/internal/paths"
)

var initMode string

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter hlsup.yaml for the workspace",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
	cmd.Flags().StringVar(&initMode, "mode", "", "Management mode to record (PATH or GHCup); asks when omitted")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfgFile, err := workspaceConfigFile()
	if err != nil {
		return err
	}
	exists, err := paths.FileExists(cfgFile)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s already exists; use `hlsup config set-mode` or `hlsup config edit`", cfgFile)
	}

	cfg := config.Default()
	switch {
	case initMode != "":
		cfg.ManageHLS, err = parseMode(initMode)
	default:
		p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr(), assumeYes)
		if p.interactive {
			cfg.ManageHLS, err = p.ChooseMode(cmd.Context())
		}
	}
	if err != nil {
		return err
	}

	if err := ensureConfigFileExists(cfgFile, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgFile)
	if cfg.ManageHLS == config.ModeUnset {
		fmt.Fprintln(cmd.OutOrStdout(), "manage_hls is unset; hlsup will ask on first resolve")
	}
	return nil
}
