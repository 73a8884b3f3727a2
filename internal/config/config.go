package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the workspace root.
const FileName = "hlsup.yaml"

// ManageMode selects how the language server toolchain is obtained.
type ManageMode string

const (
	// ModeUnset means the user has not chosen yet and should be asked.
	ModeUnset ManageMode = ""
	// ModePATH uses whatever server binary is already on PATH.
	ModePATH ManageMode = "PATH"
	// ModeGHCup installs and selects toolchains through ghcup.
	ModeGHCup ManageMode = "GHCup"
)

// Config captures the per-workspace settings of the resolver.
type Config struct {
	ManageHLS              ManageMode        `yaml:"manage_hls,omitempty" validate:"omitempty,oneof=PATH GHCup"`
	GHCupExecutablePath    string            `yaml:"ghcup_executable_path,omitempty"`
	ServerExecutablePath   string            `yaml:"server_executable_path,omitempty"`
	CompilerExecutablePath string            `yaml:"compiler_executable_path,omitempty"`
	ServerEnvironment      map[string]string `yaml:"server_environment,omitempty" validate:"dive,keys,required,endkeys"`
	ReleaseMetadataURL     string            `yaml:"release_metadata_url,omitempty" validate:"omitempty,url"`
	StoragePath            string            `yaml:"storage_path,omitempty"`
	UpgradeGHCup           bool              `yaml:"upgrade_ghcup"`
	PromptBeforeDownloads  *bool             `yaml:"prompt_before_downloads,omitempty"`
	// Toolchain pins tool versions by kind (ghc, cabal, stack, hls).
	Toolchain map[string]string `yaml:"toolchain,omitempty" validate:"dive,keys,oneof=ghc cabal stack hls,endkeys,required"`
	LogLevel  string            `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		UpgradeGHCup:          true,
		PromptBeforeDownloads: boolPtr(true),
		LogLevel:              "info",
	}
}

// PromptBeforeDownloadsValue returns the effective prompt flag applying
// defaults.
func (c Config) PromptBeforeDownloadsValue() bool {
	if c.PromptBeforeDownloads == nil {
		return true
	}
	return *c.PromptBeforeDownloads
}

// Pinned returns the pinned version for a tool kind, if any.
func (c Config) Pinned(kind string) string {
	if c.Toolchain == nil {
		return ""
	}
	return c.Toolchain[kind]
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration. Shape and value problems are returned together
// as ValidationErrors.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(contents)
}

// Parse decodes and validates YAML configuration contents.
func Parse(contents []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if errs := CheckShape(raw); len(errs) > 0 {
		return Config{}, errs
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills fields the YAML omitted.
func (c *Config) ApplyDefaults() {
	if c.PromptBeforeDownloads == nil {
		c.PromptBeforeDownloads = boolPtr(true)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

func boolPtr(v bool) *bool {
	return &v
}
