package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"hlsup/internal/config"
	"hlsup/internal/hlserr"
	"hlsup/internal/process"
)

// LocateOptions controls how the ghcup binary is found.
type LocateOptions struct {
	// ExplicitPath is the configured ghcup_executable_path, placeholders
	// unresolved.
	ExplicitPath string
	Workspace    string
	// Env is the environment whose PATH is searched. Nil means os.Environ.
	Env []string
	// ExtraDirs are searched after PATH and before the well-known locations.
	ExtraDirs []string
}

// Locate finds ghcup: explicit path, then PATH, then well-known install
// locations. It returns a MissingToolError naming ghcup when nothing is found.
func Locate(opts LocateOptions) (string, error) {
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	if opts.ExplicitPath != "" {
		p, err := config.ResolvePath(opts.ExplicitPath, opts.Workspace)
		if err != nil {
			return "", err
		}
		if !isFile(p) {
			return "", fmt.Errorf("ghcup_executable_path %s does not exist: %w", p, hlserr.NewMissingTool(GHCupName))
		}
		return p, nil
	}
	if p, err := process.LookPath(GHCupName, env); err == nil {
		return p, nil
	}
	candidates := make([]string, 0, len(opts.ExtraDirs)+3)
	for _, dir := range opts.ExtraDirs {
		candidates = append(candidates, filepath.Join(dir, process.ExecutableName(GHCupName)))
	}
	candidates = append(candidates, wellKnownLocations(env, runtime.GOOS)...)
	for _, candidate := range candidates {
		if isFile(candidate) {
			return candidate, nil
		}
	}
	return "", hlserr.NewMissingTool(GHCupName)
}

func wellKnownLocations(env []string, goos string) []string {
	var out []string
	if prefix, ok := process.Lookup(env, "GHCUP_INSTALL_BASE_PREFIX"); ok && prefix != "" {
		out = append(out, filepath.Join(prefix, ".ghcup", "bin", exeFor(goos, GHCupName)))
	}
	home, ok := process.Lookup(env, "HOME")
	if !ok || home == "" {
		home, _ = os.UserHomeDir()
	}
	if home != "" {
		out = append(out, filepath.Join(home, ".ghcup", "bin", exeFor(goos, GHCupName)))
	}
	if goos == "windows" {
		out = append(out, `C:\ghcup\bin\ghcup.exe`)
	}
	return out
}

func exeFor(goos, name string) string {
	if goos == "windows" {
		return name + ".exe"
	}
	return name
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
