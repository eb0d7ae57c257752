package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.Host)
	assert.Equal(t, "gpt-oss:20b", cfg.Model)
	assert.Equal(t, "nomic-embed-text", cfg.EmbedModel)
	assert.Equal(t, ".corpusloom/corpusloom.db", cfg.DBPath)
	assert.Equal(t, "10m", cfg.KeepAlive)
	assert.Equal(t, 0, cfg.CallsPerMinute)
	assert.Equal(t, 800, cfg.MaxTokens)
	assert.Equal(t, 120, cfg.OverlapTokens)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CLOOM_HOST", "http://models.internal:11434")
	t.Setenv("CLOOM_MODEL", "llama3.1")
	t.Setenv("CLOOM_CPM", "90")
	t.Setenv("CLOOM_MAX_TOKENS", "512")
	t.Setenv("CLOOM_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://models.internal:11434", cfg.Host)
	assert.Equal(t, "llama3.1", cfg.Model)
	assert.Equal(t, 90, cfg.CallsPerMinute)
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched values keep their defaults
	assert.Equal(t, "nomic-embed-text", cfg.EmbedModel)
}

func TestLoad_InvalidInteger(t *testing.T) {
	t.Setenv("CLOOM_MAX_TOKENS", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
