package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResolvePath substitutes home and workspace placeholders in a configured
// path. Relative results are taken relative to the workspace.
func ResolvePath(value, workspace string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	home, homeErr := os.UserHomeDir()
	needsHome := value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) ||
		strings.Contains(value, "${HOME}") || strings.Contains(value, "${userHome}")
	if needsHome && homeErr != nil {
		return "", fmt.Errorf("resolve %q: %w", value, homeErr)
	}

	replacer := strings.NewReplacer(
		"${HOME}", home,
		"${userHome}", home,
		"${workspaceFolder}", workspace,
		"${workspaceRoot}", workspace,
	)
	value = replacer.Replace(value)
	if value == "~" {
		value = home
	} else if strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		value = filepath.Join(home, value[2:])
	}

	return resolveExternalPath(workspace, value), nil
}

// resolveExternalPath returns path as-is if absolute, otherwise joins it with root.
func resolveExternalPath(root, path string) string {
	if filepath.IsAbs(path) || root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// SaveMode records the chosen management mode in the config file at path,
// keeping everything else in the document intact.
func SaveMode(path string, mode ManageMode) error {
	var doc yaml.Node
	contents, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, &doc); err != nil {
			return fmt.Errorf("parse config %q: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read config %q: %w", path, err)
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config %q: top level is not a mapping", path)
	}
	setMappingValue(doc.Content[0], "manage_hls", string(mode))

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config %q: %w", path, err)
	}
	return nil
}

func setMappingValue(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}
