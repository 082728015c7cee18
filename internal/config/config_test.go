package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Provider:              ProviderGemini,
		ModelName:             "gemini-2.5-flash",
		SearchModel:           "gemini-2.5-flash",
		MaxSteps:              DefaultMaxSteps,
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		Search:                SearchConfig{BaseURL: "https://api.exa.ai"},
		ListenAddr:            "127.0.0.1:8080",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown provider", func(c *Config) { c.Provider = "anthropic" }, ErrInvalidProvider},
		{"empty model", func(c *Config) { c.ModelName = " " }, ErrInvalidModelName},
		{"empty search model", func(c *Config) { c.SearchModel = "" }, ErrInvalidModelName},
		{"zero steps", func(c *Config) { c.MaxSteps = 0 }, ErrInvalidMaxSteps},
		{"too many steps", func(c *Config) { c.MaxSteps = MaxAllowedSteps + 1 }, ErrInvalidMaxSteps},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSeconds = 0 }, ErrInvalidTimeout},
		{"huge timeout", func(c *Config) { c.RequestTimeoutSeconds = 301 }, ErrInvalidTimeout},
		{"bad search url", func(c *Config) { c.Search.BaseURL = "not a url" }, ErrInvalidSearchBaseURL},
		{"bad listen addr", func(c *Config) { c.ListenAddr = "8080" }, ErrInvalidListenAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidateAllowsMissingSearchCredential(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Search.APIKey = ""
	assert.NoError(t, cfg.Validate(), "missing credential selects degraded mode, not failure")
	assert.False(t, cfg.SearchEnabled())

	cfg.Search.APIKey = "exa-key"
	assert.True(t, cfg.SearchEnabled())
}

func TestFullModelName(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	assert.Equal(t, "googleai/gemini-2.5-flash", cfg.FullModelName("gemini-2.5-flash"))
	assert.Equal(t, "googleai/gemini-2.5-flash", cfg.FullModelName(""), "empty falls back to configured model")
	assert.Equal(t, "mock/test-model", cfg.FullModelName("mock/test-model"), "qualified ids pass through")

	cfg.Provider = ProviderOllama
	assert.Equal(t, "ollama/llama3.3", cfg.FullModelName("llama3.3"))

	cfg.Provider = ProviderOpenAI
	assert.Equal(t, "openai/gpt-4o-mini", cfg.FullModelName("gpt-4o-mini"))
}

func TestSecretMaskedInJSONAndString(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Search.APIKey = "exa-super-secret-key"

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "exa-super-secret-key")
	assert.Contains(t, string(data), maskedValue)

	s := cfg.String()
	assert.NotContains(t, s, "exa-super-secret-key")
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	assert.Empty(t, maskSecret(""))
	assert.Equal(t, maskedValue, maskSecret("short"))

	long := maskSecret("abcdefghijkl")
	assert.True(t, strings.HasPrefix(long, "ab"))
	assert.True(t, strings.HasSuffix(long, "kl"))
	assert.NotContains(t, long, "cdefghij")
}
