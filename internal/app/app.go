// Package app provides application initialization and dependency wiring.
//
// App is the container created once at startup. Setup initializes tracing,
// Genkit with the configured AI provider, the search adapters, the persona
// store and the orchestrator; Close releases everything in reverse order.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/personachat/relay/internal/chat"
	"github.com/personachat/relay/internal/config"
	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/persona"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit       *genkit.Genkit
	Personas     *persona.Store
	Tools        []ai.Tool
	Orchestrator *chat.Orchestrator

	otelCleanup func()
}

// Close releases application resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
