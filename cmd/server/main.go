// Package main is the entry point for the task manager API server.
//
// main stays small: read configuration, build the logger and tracing, then
// hand over to internal/server. All behaviour lives in internal packages so
// it can be tested without starting a process.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/server"
	"github.com/sakif/task-manager/internal/telemetry"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code. Keeping os.Exit out of here lets the
// deferred tracing shutdown flush spans on the failure paths too.
func run() int {
	// === 1. READ CONFIGURATION ===
	// Everything comes from environment variables; see internal/config.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	// === 2. SET UP LOGGING ===
	// key=value lines on stdout. The default logger is replaced too, so
	// helpers that log through slog's package functions share the handler.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// === 3. TRACING ===
	// Off unless OTEL_EXPORTER_OTLP_ENDPOINT is set.
	shutdownTracing, err := telemetry.Setup(context.Background(), server.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", slog.String("error", err.Error()))
		}
	}()

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return 1
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
