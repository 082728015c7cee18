// Package observability wires optional OTLP trace export into Genkit's
// tracer provider.
package observability

import (
	"context"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/personachat/relay/internal/config"
	"github.com/personachat/relay/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Setup registers an OTLP HTTP span exporter on Genkit's TracerProvider and
// returns a shutdown function. Must run before genkit.Init so spans from the
// first request are captured.
//
// An empty endpoint disables export; the returned shutdown is then a no-op.
// Exporter construction failure also degrades to a no-op: tracing is never
// allowed to block startup.
func Setup(ctx context.Context, cfg config.OtelConfig, logger log.Logger) func() {
	if cfg.Endpoint == "" {
		return func() {}
	}

	// OTEL env vars are read by Genkit's TracerProvider. Set once during
	// startup, before any goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
