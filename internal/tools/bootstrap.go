package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"hlsup/internal/metadata"
	"hlsup/internal/progress"
)

// DownloadBase hosts the standalone ghcup binaries.
const DownloadBase = "https://downloads.haskell.org/~ghcup/"

// Downloader fetches src into dest once.
type Downloader interface {
	DownloadToFile(ctx context.Context, title, src, dest string, sink progress.Sink) (bool, error)
}

// DownloadURL returns the ghcup binary URL for a host.
func DownloadURL(platform metadata.Platform, arch metadata.Arch) (string, error) {
	var name string
	switch platform {
	case metadata.PlatformLinux:
		switch arch {
		case metadata.ArchX86_64:
			name = "x86_64-linux-ghcup"
		case metadata.ArchX86:
			name = "i386-linux-ghcup"
		case metadata.ArchARM64:
			name = "aarch64-linux-ghcup"
		case metadata.ArchARM:
			name = "armv7-linux-ghcup"
		}
	case metadata.PlatformDarwin:
		switch arch {
		case metadata.ArchX86_64:
			name = "x86_64-apple-darwin-ghcup"
		case metadata.ArchARM64:
			name = "aarch64-apple-darwin-ghcup"
		case metadata.ArchX86, metadata.ArchARM:
		}
	case metadata.PlatformFreeBSD:
		switch arch {
		case metadata.ArchX86_64:
			name = "x86_64-portbld-freebsd-ghcup"
		case metadata.ArchX86, metadata.ArchARM64, metadata.ArchARM:
		}
	case metadata.PlatformWindows:
		switch arch {
		case metadata.ArchX86_64:
			name = "x86_64-mingw64-ghcup.exe"
		case metadata.ArchX86, metadata.ArchARM64, metadata.ArchARM:
		}
	}
	if name == "" {
		return "", fmt.Errorf("no ghcup binary published for %s/%s", platform, arch)
	}
	return DownloadBase + name, nil
}

// Bootstrap downloads ghcup for the host into binDir and returns its path.
// An existing binary is reused.
func Bootstrap(ctx context.Context, d Downloader, binDir string, platform metadata.Platform, arch metadata.Arch, sink progress.Sink) (string, error) {
	src, err := DownloadURL(platform, arch)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(binDir, exeFor(goosFor(platform), GHCupName))
	if _, err := d.DownloadToFile(ctx, "Downloading ghcup", src, dest, sink); err != nil {
		return "", err
	}
	return dest, nil
}

func goosFor(platform metadata.Platform) string {
	if platform == metadata.PlatformWindows {
		return "windows"
	}
	return ""
}
