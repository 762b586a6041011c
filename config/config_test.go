package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willpenman/llm-philosophy/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvResponsesDir, "")
	t.Setenv(EnvPromptsDir, "")

	cfg := Load()
	assert.Equal(t, "responses", cfg.ResponsesDir)
	assert.Empty(t, cfg.PromptsDir, "unset prompts dir means embedded fixtures")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(EnvResponsesDir, "/data/runs")
	t.Setenv(EnvPromptsDir, "/data/prompts")

	cfg := Load()
	assert.Equal(t, "/data/runs", cfg.ResponsesDir)
	assert.Equal(t, "/data/prompts", cfg.PromptsDir)
}

func TestAPIKey(t *testing.T) {
	desc := &core.ProviderDescriptor{
		Name:         "gemini",
		APIKeyEnv:    "GEMINI_API_KEY",
		APIKeyEnvAlt: "GOOGLE_API_KEY",
	}

	t.Setenv("GEMINI_API_KEY", "primary")
	t.Setenv("GOOGLE_API_KEY", "fallback")
	key, err := APIKey(desc)
	require.NoError(t, err)
	assert.Equal(t, "primary", key)

	t.Setenv("GEMINI_API_KEY", "")
	key, err = APIKey(desc)
	require.NoError(t, err)
	assert.Equal(t, "fallback", key, "alternate env var is honored")

	t.Setenv("GOOGLE_API_KEY", "")
	_, err = APIKey(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestAPIKeyWithoutAlternate(t *testing.T) {
	desc := &core.ProviderDescriptor{
		Name:      "openai",
		APIKeyEnv: "OPENAI_API_KEY",
	}
	t.Setenv("OPENAI_API_KEY", "")
	_, err := APIKey(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestBaseURLOverride(t *testing.T) {
	desc := &core.ProviderDescriptor{
		Name:    "openai",
		BaseURL: "https://api.openai.com/v1",
	}

	t.Setenv("OPENAI_BASE_URL", "")
	assert.Equal(t, "https://api.openai.com/v1", BaseURL(desc))

	t.Setenv("OPENAI_BASE_URL", "http://127.0.0.1:8080/v1")
	assert.Equal(t, "http://127.0.0.1:8080/v1", BaseURL(desc))
}
