package metadata

import (
	"fmt"
	"runtime"
)

// Platform is a platform label used as a key in the release manifest.
type Platform string

const (
	PlatformDarwin  Platform = "Darwin"
	PlatformFreeBSD Platform = "FreeBSD"
	PlatformLinux   Platform = "Linux_UnknownLinux"
	PlatformWindows Platform = "Windows"
)

// Arch is an architecture label used as a key in the release manifest.
type Arch string

const (
	ArchX86_64 Arch = "A_64"
	ArchX86    Arch = "A_32"
	ArchARM64  Arch = "A_ARM64"
	ArchARM    Arch = "A_ARM"
)

// PlatformFor maps a GOOS value to its manifest label. Unknown operating
// systems are an error rather than a guess.
func PlatformFor(goos string) (Platform, error) {
	switch goos {
	case "darwin":
		return PlatformDarwin, nil
	case "freebsd":
		return PlatformFreeBSD, nil
	case "linux":
		return PlatformLinux, nil
	case "windows":
		return PlatformWindows, nil
	}
	return "", fmt.Errorf("unsupported platform %q", goos)
}

// ArchFor maps a GOARCH value to its manifest label.
func ArchFor(goarch string) (Arch, error) {
	switch goarch {
	case "amd64":
		return ArchX86_64, nil
	case "386":
		return ArchX86, nil
	case "arm64":
		return ArchARM64, nil
	case "arm":
		return ArchARM, nil
	}
	return "", fmt.Errorf("unsupported architecture %q", goarch)
}

// Host returns the labels for the running process.
func Host() (Platform, Arch, error) {
	p, err := PlatformFor(runtime.GOOS)
	if err != nil {
		return "", "", err
	}
	a, err := ArchFor(runtime.GOARCH)
	if err != nil {
		return "", "", err
	}
	return p, a, nil
}
