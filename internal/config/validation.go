package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Validate checks configuration values and fails fast with sentinel errors.
// The search credential is intentionally NOT required: its absence selects
// the documented degraded mode instead of a startup failure.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI, "":
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.SearchModel) == "" {
		return fmt.Errorf("%w: search_model must not be empty", ErrInvalidModelName)
	}

	if c.MaxSteps < 1 || c.MaxSteps > MaxAllowedSteps {
		return fmt.Errorf("%w: max_steps must be in [1, %d], got %d", ErrInvalidMaxSteps, MaxAllowedSteps, c.MaxSteps)
	}

	if c.RequestTimeoutSeconds < 1 || c.RequestTimeoutSeconds > 300 {
		return fmt.Errorf("%w: request_timeout_seconds must be in [1, 300], got %d", ErrInvalidTimeout, c.RequestTimeoutSeconds)
	}

	if c.Search.BaseURL != "" {
		u, err := url.Parse(c.Search.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidSearchBaseURL, c.Search.BaseURL)
		}
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidListenAddr, c.ListenAddr, err)
	}

	return nil
}

// ValidateServe performs the additional checks required before starting the
// HTTP server: the completion provider credential must be present (the
// Genkit plugins read it from the environment directly).
func (c *Config) ValidateServe() error {
	switch c.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		// Local provider, no key.
	default:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	}
	return nil
}
