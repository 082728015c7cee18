// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.relay/config.yaml, or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: completion provider, model selection, search-augmented model
//   - Search: Exa credential and endpoint for the search tool adapters
//   - Personas: optional directory overriding the embedded persona records
//   - Server: listen address, CORS origins, request ceiling
//   - Otel: optional OTLP trace export
//
// Security: the search credential is masked in MarshalJSON and String.
// Absence of the search credential is a supported degraded mode, not a
// startup failure.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxSteps indicates the orchestration step cap is out of range.
	ErrInvalidMaxSteps = errors.New("invalid max steps")

	// ErrInvalidTimeout indicates the request timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid request timeout")

	// ErrInvalidListenAddr indicates the server listen address is malformed.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidSearchBaseURL indicates the search provider base URL is malformed.
	ErrInvalidSearchBaseURL = errors.New("invalid search base URL")

	// ErrMissingAPIKey indicates a required completion provider key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Orchestration bounds.
const (
	// DefaultMaxSteps is the default tool-calling step cap per request.
	DefaultMaxSteps = 5

	// MaxAllowedSteps bounds the configurable step cap.
	MaxAllowedSteps = 10

	// DefaultRequestTimeoutSeconds is the wall-clock ceiling for one request.
	DefaultRequestTimeoutSeconds = 30
)

// SearchConfig holds search provider (Exa) settings for the tool adapters.
type SearchConfig struct {
	// BaseURL is the Exa API endpoint.
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	// APIKey is the Exa credential. Empty enables degraded mode
	// (channel-link-only YouTube results, web search disabled).
	APIKey string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	// RatePerSecond limits outbound search calls. Default 5.
	RatePerSecond float64 `mapstructure:"rate_per_second" json:"rate_per_second"`
}

// OtelConfig holds optional OTLP trace export settings.
type OtelConfig struct {
	// Endpoint is the OTLP HTTP collector host:port. Empty disables export.
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
type Config struct {
	// Completion provider and model configuration
	Provider    string `mapstructure:"provider" json:"provider"`         // "gemini" (default), "ollama", "openai"
	ModelName   string `mapstructure:"model_name" json:"model_name"`     // default chat model (e.g. "gemini-2.5-flash")
	SearchModel string `mapstructure:"search_model" json:"search_model"` // model used when webSearch is requested
	OllamaHost  string `mapstructure:"ollama_host" json:"ollama_host"`

	// Orchestration
	MaxSteps              int `mapstructure:"max_steps" json:"max_steps"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`

	// Personas
	PersonaDir string `mapstructure:"persona_dir" json:"persona_dir"` // empty = embedded records

	// Search provider
	Search SearchConfig `mapstructure:"search" json:"search"`

	// Server
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Observability
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".relay")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("search_model", "gemini-2.5-flash")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("max_steps", DefaultMaxSteps)
	v.SetDefault("request_timeout_seconds", DefaultRequestTimeoutSeconds)

	v.SetDefault("search.base_url", "https://api.exa.ai")
	v.SetDefault("search.rate_per_second", 5.0)

	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("otel.service_name", "relay")
	v.SetDefault("otel.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
//
// Secrets:
//  1. EXA_API_KEY - search provider credential (optional; degraded mode without it)
//  2. GEMINI_API_KEY / OPENAI_API_KEY - read directly by the Genkit plugins,
//     not via viper; presence is checked in Validate based on the provider.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("search.api_key", "EXA_API_KEY")
	mustBind("provider", "RELAY_PROVIDER")
	mustBind("model_name", "RELAY_MODEL_NAME")
	mustBind("search_model", "RELAY_SEARCH_MODEL")
	mustBind("ollama_host", "RELAY_OLLAMA_HOST")
	mustBind("persona_dir", "RELAY_PERSONA_DIR")
	mustBind("listen_addr", "RELAY_LISTEN_ADDR")
	mustBind("cors_origins", "RELAY_CORS_ORIGINS")
	mustBind("otel.endpoint", "RELAY_OTEL_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked; longer secrets keep the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Search.APIKey = maskSecret(a.Search.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified name for Genkit for the
// given model. Model identifiers that already carry a provider prefix are
// returned as-is — the relay treats client-supplied model ids as opaque.
func (c *Config) FullModelName(model string) string {
	if model == "" {
		model = c.ModelName
	}
	if strings.Contains(model, "/") {
		return model
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + model
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + model
	default:
		return ProviderGoogleAI + "/" + model
	}
}

// SearchEnabled reports whether the search provider credential is configured.
func (c *Config) SearchEnabled() bool {
	return c.Search.APIKey != ""
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
