// Package config resolves runtime settings from the environment. A .env file
// in the working directory is honored when present; real environment
// variables always win.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/willpenman/llm-philosophy/internal/core"
)

const (
	// EnvResponsesDir overrides where the run archive lives.
	EnvResponsesDir = "LLMPHIL_RESPONSES_DIR"
	// EnvPromptsDir points at a prompt fixture directory; unset means the
	// embedded fixtures.
	EnvPromptsDir = "LLMPHIL_PROMPTS_DIR"

	defaultResponsesDir = "responses"
)

// Config holds the process-level settings shared by the CLIs.
type Config struct {
	ResponsesDir string
	PromptsDir   string
}

// Load reads the optional .env file and the environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ResponsesDir: defaultResponsesDir,
	}
	if v := os.Getenv(EnvResponsesDir); v != "" {
		cfg.ResponsesDir = v
	}
	if v := os.Getenv(EnvPromptsDir); v != "" {
		cfg.PromptsDir = v
	}
	return cfg
}

// APIKey resolves a provider's key from its descriptor's environment
// variable, tolerating the documented fallback name.
func APIKey(p *core.ProviderDescriptor) (string, error) {
	if key := os.Getenv(p.APIKeyEnv); key != "" {
		return key, nil
	}
	if p.APIKeyEnvAlt != "" {
		if key := os.Getenv(p.APIKeyEnvAlt); key != "" {
			return key, nil
		}
	}
	names := p.APIKeyEnv
	if p.APIKeyEnvAlt != "" {
		names += " or " + p.APIKeyEnvAlt
	}
	return "", fmt.Errorf("missing API key for provider %s: set %s", p.Name, names)
}

// BaseURL returns the provider endpoint, honoring a <PROVIDER>_BASE_URL
// environment override for proxies and test doubles.
func BaseURL(p *core.ProviderDescriptor) string {
	env := strings.ToUpper(p.Name) + "_BASE_URL"
	if v := os.Getenv(env); v != "" {
		return v
	}
	return p.BaseURL
}
