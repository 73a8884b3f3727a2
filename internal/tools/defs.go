package tools

import (
	"hlsup/internal/process"
)

const (
	// GHCupName is the toolchain manager's executable base name.
	GHCupName = "ghcup"
	// WrapperName is the server launcher that picks the right server binary
	// for a project's compiler.
	WrapperName = "haskell-language-server-wrapper"
	// ServerPrefix starts the name of every compiler-specific server binary.
	ServerPrefix = "haskell-language-server-"
)

// binaryNames maps each kind to the executable a toolchain bindir provides.
var binaryNames = map[Kind]string{
	KindGHC:   "ghc",
	KindCabal: "cabal",
	KindStack: "stack",
	KindHLS:   WrapperName,
}

// BinaryName returns the platform executable name for kind.
func BinaryName(kind Kind) string {
	return process.ExecutableName(binaryNames[kind])
}

// CanonicalName is the name used when reporting kind as missing.
func CanonicalName(kind Kind) string {
	if kind == KindHLS {
		return "haskell-language-server"
	}
	return string(kind)
}
