package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"hlsup/internal/config"
	"hlsup/internal/tools"
	"hlsup/internal/tui"
)

var errModeNotSet = errors.New("manage_hls is not set: run `hlsup init` or set it in hlsup.yaml")

// prompter asks through huh forms when stdin is a terminal and falls back to
// flags otherwise.
type prompter struct {
	in          io.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool
}

func newPrompter(in io.Reader, out io.Writer, assumeYes bool) *prompter {
	return &prompter{
		in:          in,
		out:         out,
		assumeYes:   assumeYes,
		interactive: tui.IsTerminal(in) && tui.IsTerminal(out),
	}
}

func (p *prompter) ChooseMode(ctx context.Context) (config.ManageMode, error) {
	if !p.interactive {
		return config.ModeUnset, errModeNotSet
	}
	var mode config.ManageMode = config.ModeGHCup
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[config.ManageMode]().
			Title("How should the Haskell language server be managed?").
			Options(
				huh.NewOption("Automatically via ghcup (recommended)", config.ModeGHCup),
				huh.NewOption("Use the server already on my PATH", config.ModePATH),
			).
			Value(&mode),
	)).WithInput(p.in).WithOutput(p.out)
	if err := form.RunWithContext(ctx); err != nil {
		return config.ModeUnset, fmt.Errorf("choose mode: %w", err)
	}
	return mode, nil
}

func (p *prompter) ConfirmInstall(ctx context.Context, missing []tools.ToolInfo) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	if !p.interactive {
		return false, nil
	}
	ok := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Download missing tools?").
			Description(describeMissing(missing)).
			Affirmative("Download").
			Negative("Cancel").
			Value(&ok),
	)).WithInput(p.in).WithOutput(p.out)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirm install: %w", err)
	}
	return ok, nil
}

func describeMissing(missing []tools.ToolInfo) string {
	parts := make([]string, len(missing))
	for i, info := range missing {
		parts[i] = fmt.Sprintf("%s %s", tools.CanonicalName(info.Kind), info.Version)
	}
	return "Not installed yet: " + strings.Join(parts, ", ")
}
