// Package main is the entry point for the FaceFeed API server.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facefeed/internal/bootstrap"
	"facefeed/internal/config"
	"facefeed/internal/middleware"
	"facefeed/internal/observability"
	"facefeed/internal/server"
)

// @title FaceFeed API
// @version 1.0
// @description Social feed API with posts, comments, reactions and face verification
// @host localhost:8375
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	middleware.Logger = middleware.NewLogger(cfg.Env, level)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "facefeed-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{Migrate: !cfg.IsProduction()})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	opts, err := rt.ServerOptions(ctx)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}
	opts.Metrics = middleware.InitMetrics("facefeed-api")
	srv := server.New(opts)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
		if err := rt.Close(); err != nil {
			log.Printf("Runtime close error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
