package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"hlsup/internal/config"
	"hlsup/internal/paths"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit workspace configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigEditCmd())
	cmd.AddCommand(newConfigSetModeCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration in YAML",
		RunE:  runConfigShow,
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check hlsup.yaml and list every problem found",
		RunE:  runConfigValidate,
	}
}

func newConfigEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the workspace configuration in $EDITOR",
		RunE:  runConfigEdit,
	}
}

func newConfigSetModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set-mode PATH|GHCup",
		Short:     "Record how the language server is managed",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(config.ModePATH), string(config.ModeGHCup)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(args[0])
			if err != nil {
				return err
			}
			cfgFile, err := workspaceConfigFile()
			if err != nil {
				return err
			}
			if err := config.SaveMode(cfgFile, mode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "manage_hls: %s\n", mode)
			return nil
		},
	}
}

func parseMode(value string) (config.ManageMode, error) {
	switch {
	case strings.EqualFold(value, string(config.ModePATH)):
		return config.ModePATH, nil
	case strings.EqualFold(value, string(config.ModeGHCup)):
		return config.ModeGHCup, nil
	}
	return config.ModeUnset, fmt.Errorf("unknown mode %q (want PATH or GHCup)", value)
}

func workspaceConfigFile() (string, error) {
	workspace, err := paths.ResolveWorkspace(workspaceDir)
	if err != nil {
		return "", err
	}
	return paths.ConfigFile(workspace, configPath), nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfgFile, err := workspaceConfigFile()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfgFile, err := workspaceConfigFile()
	if err != nil {
		return err
	}
	_, err = config.Load(cfgFile)
	var verrs config.ValidationErrors
	switch {
	case err == nil:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", cfgFile)
		return nil
	case errors.As(err, &verrs):
		if outputJSON {
			if jerr := writeJSON(cmd.OutOrStdout(), verrs); jerr != nil {
				return jerr
			}
		} else {
			for _, v := range verrs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cfgFile, v.Error())
			}
		}
		return fmt.Errorf("%s has %d problem(s)", cfgFile, len(verrs))
	}
	return err
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfgFile, err := workspaceConfigFile()
	if err != nil {
		return err
	}
	if err := ensureConfigFileExists(cfgFile, config.Default()); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := splitEditorCommand(editor)
	if len(parts) == 0 {
		return fmt.Errorf("invalid EDITOR value: %q", editor)
	}
	parts = append(parts, cfgFile)

	execCmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	execCmd.Stdout = cmd.OutOrStdout()
	execCmd.Stderr = cmd.ErrOrStderr()
	execCmd.Stdin = cmd.InOrStdin()
	execCmd.Dir = filepath.Dir(cfgFile)

	if err := execCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s does not validate: %v\n", cfgFile, err)
	}
	return nil
}

// ensureConfigFileExists writes cfg to path unless a file is already there.
func ensureConfigFileExists(path string, cfg config.Config) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func splitEditorCommand(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	// Handles simple EDITOR values like "nano" or "code -w".
	return strings.Fields(value)
}
