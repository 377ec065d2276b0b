package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the YAML file looked up inside the config directory.
const ConfigFileName = "ragshield.yaml"

// Initialize loads, merges, and validates configuration from configDir.
// A missing YAML file is not an error: defaults apply. This is the primary
// entry point for configuration loading.
func Initialize(configDir string) (*Config, error) {
	cfg := Defaults()

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No configuration file found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		fileCfg := &Config{}
		if err := yaml.Unmarshal(ExpandEnv(data), fileCfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", path, err)
		}
		slog.Info("Loaded configuration", "path", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EventLogPath returns the append-only event log location.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.Paths.DataDir, "events.jsonl")
}

// LineageLogPath returns the append-only query-lineage log location.
func (c *Config) LineageLogPath() string {
	return filepath.Join(c.Paths.DataDir, "query_lineage.jsonl")
}

// VaultDir returns the quarantine vault root directory.
func (c *Config) VaultDir() string {
	return filepath.Join(c.Paths.DataDir, "vault")
}

// IndexDir returns the opaque directory owned by the retrieval adapter.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Paths.DataDir, "index")
}
