// Package config loads the versioned runtime configuration: model pricing,
// retrieval tuning, delegate staleness, timeouts and backing-store addresses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelTierConfig prices and names one model tier.
type ModelTierConfig struct {
	Model                 string  `yaml:"model"`
	CostPerThousandTokens float64 `yaml:"cost_per_1k_tokens"`
}

// ModelsConfig holds the per-tier model configuration.
type ModelsConfig struct {
	Economy            ModelTierConfig `yaml:"economy"`
	Premium            ModelTierConfig `yaml:"premium"`
	EmbeddingCostPer1K float64         `yaml:"embedding_cost_per_1k_tokens"`
}

// RetrievalConfig tunes the retrieval agent.
type RetrievalConfig struct {
	Threshold      float64 `yaml:"threshold"`
	Limit          int     `yaml:"limit"`
	Hybrid         bool    `yaml:"hybrid"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
}

// StructuredConfig tunes the structured-query agent.
type StructuredConfig struct {
	RowLimit int `yaml:"row_limit"`

	// Schemas maps tenant namespace to the schema description shown to the
	// translation model.
	Schemas       map[string]string `yaml:"schemas"`
	DefaultSchema string            `yaml:"default_schema"`
}

// DelegateConfig tunes the long-running analysis workflow.
type DelegateConfig struct {
	// StalenessWindow bounds how long completed analyses are served from
	// cache. Zero disables caching. Required to be set explicitly.
	StalenessWindow time.Duration `yaml:"staleness_window"`
}

// WorkflowConfig tunes the orchestration engine.
type WorkflowConfig struct {
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// StoresConfig holds backing-store addresses.
type StoresConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
}

// Config is the full runtime configuration.
type Config struct {
	Models     ModelsConfig     `yaml:"models"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Structured StructuredConfig `yaml:"structured"`
	Delegate   DelegateConfig   `yaml:"delegate"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Stores     StoresConfig     `yaml:"stores"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Models: ModelsConfig{
			Economy: ModelTierConfig{Model: "gpt-4o-mini", CostPerThousandTokens: 0.00045},
			Premium: ModelTierConfig{Model: "claude-3-5-sonnet-20241022", CostPerThousandTokens: 0.009},
		},
		Retrieval: RetrievalConfig{
			Threshold:      0.7,
			Limit:          5,
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			ChunkSize:      1000,
			ChunkOverlap:   200,
		},
		Structured: StructuredConfig{RowLimit: 50},
		Delegate:   DelegateConfig{StalenessWindow: 24 * time.Hour},
		Workflow:   WorkflowConfig{StepTimeout: 30 * time.Second},
	}
}

// Load reads a yaml config file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime.
func (c Config) Validate() error {
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval threshold %v out of range [0,1]", c.Retrieval.Threshold)
	}
	if c.Retrieval.Limit <= 0 {
		return fmt.Errorf("retrieval limit must be positive")
	}
	if c.Retrieval.Hybrid && c.Retrieval.SemanticWeight+c.Retrieval.KeywordWeight <= 0 {
		return fmt.Errorf("hybrid weights must sum to a positive value")
	}
	if c.Structured.RowLimit <= 0 {
		return fmt.Errorf("structured row limit must be positive")
	}
	if c.Delegate.StalenessWindow < 0 {
		return fmt.Errorf("delegate staleness window must not be negative")
	}
	if c.Models.Economy.CostPerThousandTokens < 0 || c.Models.Premium.CostPerThousandTokens < 0 {
		return fmt.Errorf("model pricing must not be negative")
	}
	return nil
}
