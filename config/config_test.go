package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.7, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, 5, cfg.Retrieval.Limit)
	assert.Equal(t, 24*time.Hour, cfg.Delegate.StalenessWindow)
	assert.Equal(t, 30*time.Second, cfg.Workflow.StepTimeout)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  economy:
    model: gpt-4o-mini
    cost_per_1k_tokens: 0.0006
retrieval:
  threshold: 0.9
  hybrid: true
structured:
  row_limit: 25
  schemas:
    tenant-a: "TABLE widgets (id int)"
delegate:
  staleness_window: 6h
stores:
  postgres_dsn: postgres://localhost/contextmesh
  redis_addr: localhost:6379
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.0006, cfg.Models.Economy.CostPerThousandTokens, 1e-9)
	assert.InDelta(t, 0.9, cfg.Retrieval.Threshold, 1e-9)
	assert.True(t, cfg.Retrieval.Hybrid)
	// untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Retrieval.Limit)
	assert.InDelta(t, 0.7, cfg.Retrieval.SemanticWeight, 1e-9)

	assert.Equal(t, 25, cfg.Structured.RowLimit)
	assert.Equal(t, "TABLE widgets (id int)", cfg.Structured.Schemas["tenant-a"])
	assert.Equal(t, 6*time.Hour, cfg.Delegate.StalenessWindow)
	assert.Equal(t, "localhost:6379", cfg.Stores.RedisAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "threshold above one", mutate: func(c *Config) { c.Retrieval.Threshold = 1.5 }},
		{name: "zero limit", mutate: func(c *Config) { c.Retrieval.Limit = 0 }},
		{name: "zero row limit", mutate: func(c *Config) { c.Structured.RowLimit = 0 }},
		{name: "negative staleness", mutate: func(c *Config) { c.Delegate.StalenessWindow = -time.Hour }},
		{name: "negative pricing", mutate: func(c *Config) { c.Models.Premium.CostPerThousandTokens = -1 }},
		{name: "hybrid without weights", mutate: func(c *Config) {
			c.Retrieval.Hybrid = true
			c.Retrieval.SemanticWeight = 0
			c.Retrieval.KeywordWeight = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
