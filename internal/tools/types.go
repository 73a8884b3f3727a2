package tools

import (
	"fmt"
	"strings"
)

// Kind is one of the tools ghcup manages for the resolver.
type Kind string

const (
	KindGHC   Kind = "ghc"
	KindCabal Kind = "cabal"
	KindStack Kind = "stack"
	KindHLS   Kind = "hls"
)

// Kinds lists every kind in install order.
var Kinds = []Kind{KindHLS, KindCabal, KindStack, KindGHC}

// ParseKind maps a name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindGHC, KindCabal, KindStack, KindHLS:
		return k, nil
	}
	return "", fmt.Errorf("unknown tool kind %q", name)
}

// Category filters ghcup list output.
type Category string

const (
	CategoryInstalled Category = "installed"
	CategoryAvailable Category = "available"
	CategorySet       Category = "set"
)

// ParseCategory maps a name to its Category.
func ParseCategory(name string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(name))); c {
	case CategoryInstalled, CategoryAvailable, CategorySet:
		return c, nil
	}
	return "", fmt.Errorf("unknown list category %q", name)
}

// ToolInfo is one row of ghcup list output.
type ToolInfo struct {
	Kind    Kind     `json:"kind"`
	Version string   `json:"version"`
	Tags    []string `json:"tags,omitempty"`
}

// HasTag reports whether the row carries tag.
func (t ToolInfo) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// Toolchain is a full set of versions installed together.
type Toolchain struct {
	HLS   string `json:"hls,omitempty"`
	GHC   string `json:"ghc,omitempty"`
	Cabal string `json:"cabal,omitempty"`
	Stack string `json:"stack,omitempty"`
}

// Get returns the version selected for kind.
func (t Toolchain) Get(kind Kind) string {
	switch kind {
	case KindHLS:
		return t.HLS
	case KindGHC:
		return t.GHC
	case KindCabal:
		return t.Cabal
	case KindStack:
		return t.Stack
	}
	return ""
}

// Set stores version for kind.
func (t *Toolchain) Set(kind Kind, version string) {
	switch kind {
	case KindHLS:
		t.HLS = version
	case KindGHC:
		t.GHC = version
	case KindCabal:
		t.Cabal = version
	case KindStack:
		t.Stack = version
	}
}

// DirName names the isolated installation directory for the toolchain.
func (t Toolchain) DirName() string {
	var parts []string
	for _, kind := range Kinds {
		if v := t.Get(kind); v != "" {
			parts = append(parts, string(kind)+"-"+v)
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, "_")
}

func (t Toolchain) String() string {
	var parts []string
	for _, kind := range Kinds {
		if v := t.Get(kind); v != "" {
			parts = append(parts, string(kind)+" "+v)
		}
	}
	return strings.Join(parts, ", ")
}
