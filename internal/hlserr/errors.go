// Package hlserr defines the errors surfaced to the user when resolving a
// language server toolchain. Errors that have a remediation page implement
// Linked so front ends can render the link separately from the message.
package hlserr

import (
	"fmt"
	"strings"
)

const (
	ghcupInstallLink     = "https://www.haskell.org/ghcup/"
	stackInstallLink     = "https://docs.haskellstack.org/en/stable/install_and_upgrade/"
	SupportedVersionsURL = "https://haskell-language-server.readthedocs.io/en/latest/supported-versions.html"
)

// Linked is implemented by errors carrying a documentation URI.
type Linked interface {
	DocLink() string
}

// MissingToolError reports an external dependency that could not be found
// or installed.
type MissingToolError struct {
	Tool string
	Link string
}

// NewMissingTool builds a MissingToolError with the install link known for
// the tool, if any.
func NewMissingTool(tool string) *MissingToolError {
	return &MissingToolError{Tool: tool, Link: installLink(tool)}
}

func installLink(tool string) string {
	switch strings.ToLower(tool) {
	case "stack":
		return stackInstallLink
	case "cabal", "ghc", "ghcup", "hls", "haskell-language-server", "haskell-language-server-wrapper":
		return ghcupInstallLink
	}
	return ""
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("project requires %s but it is not installed", e.Tool)
}

func (e *MissingToolError) DocLink() string { return e.Link }

// UnsupportedCompilerError reports that no known server release supports the
// project's compiler version.
type UnsupportedCompilerError struct {
	Version string
	Link    string
}

func NewUnsupportedCompiler(version string) *UnsupportedCompilerError {
	return &UnsupportedCompilerError{Version: version, Link: SupportedVersionsURL}
}

func (e *UnsupportedCompilerError) Error() string {
	return fmt.Sprintf("no haskell-language-server version was found supporting GHC %s", e.Version)
}

func (e *UnsupportedCompilerError) DocLink() string { return e.Link }

// NetworkError wraps a failed metadata fetch or binary download.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("network failure: %v", e.Err)
	}
	return fmt.Sprintf("network failure fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ManagerError is an internal failure of the toolchain manager, for example a
// successful install that did not produce the expected launcher.
type ManagerError struct {
	Message string
	Err     error
}

func (e *ManagerError) Error() string {
	if e.Err == nil {
		return "ghcup: " + e.Message
	}
	return fmt.Sprintf("ghcup: %s: %v", e.Message, e.Err)
}

func (e *ManagerError) Unwrap() error { return e.Err }

func (e *ManagerError) DocLink() string { return ghcupInstallLink }

// DocLink returns the first non-empty documentation link in err's tree,
// including errors combined with errors.Join.
func DocLink(err error) (string, bool) {
	if l, ok := err.(Linked); ok && l.DocLink() != "" {
		return l.DocLink(), true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return DocLink(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if link, ok := DocLink(inner); ok {
				return link, true
			}
		}
	}
	return "", false
}
