package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig describes one allow-listed command exposed as a tool.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile is the layout of a tools file.
type ConfigFile struct {
	Tools []ProcessConfig `yaml:"tools" json:"tools"`
}

// LoadTools reads a YAML or JSON tools file. A missing file yields no tools.
func LoadTools(path string) ([]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return cfg.Tools, Validate(cfg.Tools)
}

// Validate rejects unnamed, command-less and duplicate entries.
func Validate(tools []ProcessConfig) error {
	seen := make(map[string]bool, len(tools))
	var errs []error
	for i, tool := range tools {
		switch {
		case tool.Name == "":
			errs = append(errs, fmt.Errorf("tool #%d: name is required", i))
		case tool.Command == "":
			errs = append(errs, fmt.Errorf("tool %q: command is required", tool.Name))
		case seen[tool.Name]:
			errs = append(errs, fmt.Errorf("tool %q: declared twice", tool.Name))
		}
		seen[tool.Name] = true
	}
	return errors.Join(errs...)
}
