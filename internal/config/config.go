// Package config loads runtime configuration from CLOOM_* environment
// variables. CLI flags override these values.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the cloom binary
type Config struct {
	Host           string `env:"CLOOM_HOST" envDefault:"http://localhost:11434"`
	Model          string `env:"CLOOM_MODEL" envDefault:"gpt-oss:20b"`
	EmbedModel     string `env:"CLOOM_EMBED_MODEL" envDefault:"nomic-embed-text"`
	DBPath         string `env:"CLOOM_DB" envDefault:".corpusloom/corpusloom.db"`
	KeepAlive      string `env:"CLOOM_KEEP_ALIVE" envDefault:"10m"`
	CallsPerMinute int    `env:"CLOOM_CPM" envDefault:"0"`
	MaxTokens      int    `env:"CLOOM_MAX_TOKENS" envDefault:"800"`
	OverlapTokens  int    `env:"CLOOM_OVERLAP_TOKENS" envDefault:"120"`
	LogLevel       string `env:"CLOOM_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
