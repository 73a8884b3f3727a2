package tools

import "runtime"

// InstallHints suggests how a user can install ghcup by hand.
func InstallHints() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			"Install ghcup from PowerShell following https://www.haskell.org/ghcup/install/",
		}
	default:
		return []string{
			"Install ghcup: curl --proto '=https' --tlsv1.2 -sSf https://get-ghcup.haskell.org | sh",
			"or set ghcup_executable_path in hlsup.yaml",
		}
	}
}
