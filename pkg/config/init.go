package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// sectionComments documents each top-level section of a generated file.
var sectionComments = map[string]string{
	"logging":    "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)",
	"repository": "Repository: progress throttle window and operation admission rate (0 = unlimited)",
	"store":      "Store: type selects the backend (memory, badger, s3); only that section is used",
	"metrics":    "Metrics: Prometheus endpoint served by 'assetrepo metrics'",
}

// durationKeys are rendered as duration strings instead of nanoseconds.
var durationKeys = map[string]bool{
	"throttle_delay": true,
}

// InitConfig writes a default configuration file at the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists (without force) or cannot be written
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file at path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above every top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	doc.HeadComment = "Asset Repository Configuration File\n" +
		"Environment variables (ASSETREPO_<SECTION>_<KEY>) override these values."

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}
	renderDurations(&doc)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}

// renderDurations rewrites integer duration values as "1s" style strings.
func renderDurations(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if durationKeys[key.Value] && value.Kind == yaml.ScalarNode && value.ShortTag() == "!!int" {
				var d int64
				if err := value.Decode(&d); err == nil {
					value.Tag = "!!str"
					value.Value = time.Duration(d).String()
				}
			}
		}
	}
	for _, child := range n.Content {
		renderDurations(child)
	}
}
