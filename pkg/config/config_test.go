package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))
	return dir
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestInitializeWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Integrity.Threshold)
	assert.Equal(t, 2, cfg.Integrity.Quorum)
	assert.NotEmpty(t, cfg.TrustSources)
	assert.NotEmpty(t, cfg.RedFlags)
}

func TestInitializeMergesYAMLOverDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
integrity:
  quorum: 3
ollama:
  model: llama3
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Integrity.Quorum)
	assert.Equal(t, "llama3", cfg.Ollama.Model)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.5, cfg.Integrity.Threshold)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbedModel)
}

func TestInitializeExpandsEnvironment(t *testing.T) {
	t.Setenv("RAGSHIELD_TEST_DATA_DIR", "/tmp/ragshield-data")
	dir := writeConfig(t, `
paths:
  data_dir: "{{.RAGSHIELD_TEST_DATA_DIR}}"
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ragshield-data", cfg.Paths.DataDir)
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "server: [not: a: mapping")

	_, err := Initialize(dir)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"threshold above one", func(c *Config) { c.Integrity.Threshold = 1.5 }},
		{"quorum of zero", func(c *Config) { c.Integrity.Quorum = 0 }},
		{"quorum above four", func(c *Config) { c.Integrity.Quorum = 5 }},
		{"overfetch below three", func(c *Config) { c.Retrieval.OverfetchFactor = 2 }},
		{"default_k above max_k", func(c *Config) { c.Retrieval.DefaultK = 50 }},
		{"trust score out of range", func(c *Config) { c.TrustSources["x"] = 1.2 }},
		{"weights not summing to one", func(c *Config) { c.Integrity.SignalWeights = map[string]float64{"trust": 0.9} }},
		{"kafka enabled without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"negative timeout", func(c *Config) { c.Server.QueryTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)

			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestPathHelpersLiveUnderDataDir(t *testing.T) {
	cfg := Defaults()
	cfg.Paths.DataDir = "/srv/ragshield"

	assert.Equal(t, "/srv/ragshield/events.jsonl", cfg.EventLogPath())
	assert.Equal(t, "/srv/ragshield/query_lineage.jsonl", cfg.LineageLogPath())
	assert.Equal(t, "/srv/ragshield/vault", cfg.VaultDir())
	assert.Equal(t, "/srv/ragshield/index", cfg.IndexDir())
}
