package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"hlsup/internal/config"
	"hlsup/internal/hlserr"
	"hlsup/internal/metadata"
	"hlsup/internal/paths"
	"hlsup/internal/process"
	"hlsup/internal/tools"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the workspace can resolve a language server",
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "ok", "warning", "error"
	Summary string   `json:"summary"`
	Hints   []string `json:"hints,omitempty"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfgFile, err := workspaceConfigFile()
	if err != nil {
		return err
	}
	cfg, cfgErr := config.Load(cfgFile)
	checks := []healthCheck{checkConfig(cfg, cfgErr)}
	if cfgErr != nil {
		return writeDoctorResult(cmd, cfgFile, checks)
	}

	e, err := loadEnv(cmd)
	if err != nil {
		checks = append(checks, healthCheck{Name: "Storage", Status: "error", Summary: err.Error()})
		return writeDoctorResult(cmd, cfgFile, checks)
	}
	defer e.Close()

	checks = append(checks, checkStorage(e.Storage))
	if cfg.ManageHLS == config.ModePATH {
		checks = append(checks, checkWrapper(e.runner().Env(nil)))
	} else {
		checks = append(checks, checkGHCup(e))
	}
	checks = append(checks, checkMetadata(cmd, e))
	return writeDoctorResult(cmd, e.Workspace, checks)
}

func checkConfig(cfg config.Config, cfgErr error) healthCheck {
	if cfgErr != nil {
		var verrs config.ValidationErrors
		if errors.As(cfgErr, &verrs) {
			return healthCheck{Name: "Config", Status: "error", Summary: fmt.Sprintf("%d problem(s), run `hlsup config validate`", len(verrs))}
		}
		return healthCheck{Name: "Config", Status: "error", Summary: cfgErr.Error()}
	}
	if cfg.ManageHLS == config.ModeUnset {
		return healthCheck{Name: "Config", Status: "warning", Summary: "manage_hls unset, you will be asked on first resolve"}
	}
	summary := "manage_hls " + string(cfg.ManageHLS)
	if len(cfg.Toolchain) > 0 {
		pins := make([]string, 0, len(cfg.Toolchain))
		for _, kind := range tools.Kinds {
			if v := cfg.Pinned(string(kind)); v != "" {
				pins = append(pins, string(kind)+" "+v)
			}
		}
		summary += "; pinned " + joinComma(pins)
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: summary}
}

func checkStorage(s paths.Storage) healthCheck {
	entries, err := os.ReadDir(s.ToolchainsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return healthCheck{Name: "Storage", Status: "error", Summary: err.Error()}
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), "bootstrap-") {
			n++
		}
	}
	return healthCheck{Name: "Storage", Status: "ok", Summary: fmt.Sprintf("%s (%d toolchains)", s.Root, n)}
}

func checkWrapper(env []string) healthCheck {
	p, err := process.LookPath(tools.WrapperName, env)
	if err != nil {
		return healthCheck{Name: "Server", Status: "error", Summary: tools.WrapperName + " not found on PATH"}
	}
	return healthCheck{Name: "Server", Status: "ok", Summary: p}
}

func checkGHCup(e *env) healthCheck {
	m, err := e.manager()
	var missing *hlserr.MissingToolError
	switch {
	case errors.As(err, &missing) && e.Config.GHCupExecutablePath == "":
		return healthCheck{Name: "GHCup", Status: "warning", Summary: "not found, will be downloaded on first resolve", Hints: tools.InstallHints()}
	case err != nil:
		return healthCheck{Name: "GHCup", Status: "error", Summary: err.Error(), Hints: tools.InstallHints()}
	}
	return healthCheck{Name: "GHCup", Status: "ok", Summary: m.Path}
}

func checkMetadata(cmd *cobra.Command, e *env) healthCheck {
	platform, arch, err := metadata.Host()
	if err != nil {
		return healthCheck{Name: "Metadata", Status: "error", Summary: err.Error()}
	}
	got, err := e.metadataClient().Retrieve(cmd.Context(), e.Storage.Root)
	return metadataHealth(platform, arch, got, err)
}

// metadataHealth downgrades a cache fallback to a warning.
func metadataHealth(platform metadata.Platform, arch metadata.Arch, got metadata.Retrieved, err error) healthCheck {
	if err != nil {
		return healthCheck{Name: "Metadata", Status: "error", Summary: err.Error()}
	}
	n := len(metadata.SupportedHLSPerGHC(platform, arch, got.Metadata))
	switch {
	case got.Stale():
		return healthCheck{Name: "Metadata", Status: "warning", Summary: fmt.Sprintf("using cached metadata (%d server releases for %s/%s): %v", n, platform, arch, got.FetchErr)}
	case n == 0:
		return healthCheck{Name: "Metadata", Status: "warning", Summary: fmt.Sprintf("no server builds for %s/%s", platform, arch)}
	}
	return healthCheck{Name: "Metadata", Status: "ok", Summary: fmt.Sprintf("%d server releases for %s/%s", n, platform, arch)}
}

func writeDoctorResult(cmd *cobra.Command, root string, checks []healthCheck) error {
	if outputJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("WORKSPACE HEALTH:")+" "+root)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-10s %s    %s\n", c.Name+":", statusStr, c.Summary)
		for _, hint := range c.Hints {
			fmt.Fprintf(out, "  %-10s         %s\n", "", hint)
		}
	}

	return nil
}

func joinComma(items []string) string {
	return strings.Join(items, ", ")
}
