package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"hlsup/internal/config"
)

// StorageEnv overrides the storage root when set.
const StorageEnv = "HLSUP_STORAGE_DIR"

// Storage captures canonical locations under the resolver's storage root.
type Storage struct {
	Root          string
	LogsDir       string
	BinDir        string
	ToolchainsDir string
	LocksDir      string
}

// ResolveWorkspace determines the workspace root using the optional
// --workspace flag or the current working directory when the flag is empty.
func ResolveWorkspace(flag string) (string, error) {
	var (
		root string
		err  error
	)
	if flag != "" {
		root, err = filepath.Abs(flag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	return root, nil
}

// ConfigFile returns the config path for a workspace, honouring an explicit
// --config flag.
func ConfigFile(workspace, flag string) string {
	if flag != "" {
		if filepath.IsAbs(flag) {
			return filepath.Clean(flag)
		}
		return filepath.Join(workspace, flag)
	}
	return filepath.Join(workspace, config.FileName)
}

// ResolveStorage picks the storage root: the configured storage_path, then
// $HLSUP_STORAGE_DIR, then a per-user cache directory.
func ResolveStorage(cfg config.Config, workspace string) (Storage, error) {
	root, err := config.ResolvePath(cfg.StoragePath, workspace)
	if err != nil {
		return Storage{}, fmt.Errorf("resolve storage_path: %w", err)
	}
	if root == "" {
		root, err = defaultStorageRoot()
		if err != nil {
			return Storage{}, err
		}
	}
	return newStorage(root), nil
}

func newStorage(root string) Storage {
	return Storage{
		Root:          root,
		LogsDir:       filepath.Join(root, "logs"),
		BinDir:        filepath.Join(root, "bin"),
		ToolchainsDir: filepath.Join(root, "toolchains"),
		LocksDir:      filepath.Join(root, "locks"),
	}
}

func defaultStorageRoot() (string, error) {
	if override, ok := os.LookupEnv(StorageEnv); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", StorageEnv, err)
		}
		return abs, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "hlsup"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "hlsup"), nil
		}
		return filepath.Join(home, "AppData", "Local", "hlsup"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "hlsup"), nil
		}
		return filepath.Join(home, ".local", "share", "hlsup"), nil
	}
}

// Ensure creates the storage hierarchy.
func (s Storage) Ensure() error {
	for _, dir := range []string{s.Root, s.LogsDir, s.BinDir, s.ToolchainsDir, s.LocksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ToolchainDir returns the isolated installation directory for name.
func (s Storage) ToolchainDir(name string) string {
	return filepath.Join(s.ToolchainsDir, name)
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
