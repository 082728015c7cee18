package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/personachat/relay/internal/chat"
	"github.com/personachat/relay/internal/config"
	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/observability"
	"github.com/personachat/relay/internal/persona"
	"github.com/personachat/relay/internal/search"
	"github.com/personachat/relay/internal/tools"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before genkit.Init.
	a.otelCleanup = observability.Setup(ctx, cfg.Otel, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	personas, err := persona.Load(cfg.PersonaDir)
	if err != nil {
		return nil, fmt.Errorf("loading personas: %w", err)
	}
	a.Personas = personas
	logger.Info("personas loaded", "count", len(personas.All()), "default", personas.DefaultID())

	allTools, err := provideTools(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Tools = allTools

	orch, err := chat.New(chat.Config{
		Genkit:       g,
		Logger:       logger,
		Tools:        allTools,
		DefaultModel: cfg.FullModelName(cfg.ModelName),
		SearchModel:  cfg.FullModelName(cfg.SearchModel),
		MaxSteps:     cfg.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		if cfg.SearchModel != "" && cfg.SearchModel != cfg.ModelName {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: cfg.SearchModel,
				Type: "chat",
			}, nil)
		}
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideTools builds the search adapters and registers the tool set.
//
// A missing search credential is not an error: the provider client stays nil,
// web search fails per-call with a descriptive message and YouTube search
// serves its channel-link-only degraded results.
func provideTools(g *genkit.Genkit, cfg *config.Config, logger log.Logger) ([]ai.Tool, error) {
	var client search.Searcher
	if cfg.SearchEnabled() {
		exa, err := search.NewExaClient(search.ExaConfig{
			BaseURL:       cfg.Search.BaseURL,
			APIKey:        cfg.Search.APIKey,
			RatePerSecond: cfg.Search.RatePerSecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating search client: %w", err)
		}
		client = exa
	} else {
		logger.Warn("search credential not configured, tools run in degraded mode")
	}

	allTools, err := tools.Register(g, tools.Deps{
		Web:     search.NewWebSearcher(client, logger),
		YouTube: search.NewYouTubeSearcher(client, logger),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	logger.Info("tools registered", "count", len(allTools))
	return allTools, nil
}
