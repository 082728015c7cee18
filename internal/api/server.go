// Package api exposes the relay's HTTP surface: the streaming chat endpoint,
// persona listing and health probes.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/persona"
)

// defaultRequestTimeout bounds one completion when ServerConfig leaves the
// timeout unset.
const defaultRequestTimeout = 30 * time.Second

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       log.Logger
	Orchestrator Orchestrator   // Required
	Personas     *persona.Store // Required

	RequestTimeout time.Duration // 0 = defaultRequestTimeout
	CORSOrigins    []string      // Allowed origins for CORS
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Personas == nil {
		return nil, errors.New("persona store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	ch := &chatHandler{
		orch:     cfg.Orchestrator,
		personas: cfg.Personas,
		timeout:  timeout,
		logger:   cfg.Logger,
	}
	ph := &personaHandler{personas: cfg.Personas, logger: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", ch.serve)
	mux.HandleFunc("GET /api/personas", ph.list)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be innermost-but-one so preflight OPTIONS gets proper headers.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
