/*
Package main is the entry point for the peerlink signaling relay.

It is responsible for loading configuration, initializing the global logging system,
setting up the HTTP server, starting the relay Hub over the room registry,
and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerlink/internal/app/registry"
	"peerlink/internal/app/relay"
	"peerlink/internal/configs"
	"peerlink/internal/handler"
	"peerlink/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(logx.Options{Development: cfg.IsDevelopment(), Level: cfg.LogLevel})
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("resolve_reply_scope", cfg.ResolveReplyScope).
		Int64("max_message_bytes", cfg.MaxMessageBytes).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the registry and the hub that serializes every mutation on it
	reg := registry.New()
	hub := relay.NewHub(reg, cfg)
	go hub.Run()

	// Setup HTTP server and routes
	router, connectLimiter := handler.Router(&handler.AppDeps{
		Registry: reg,
		Hub:      hub,
		Config:   cfg,
	})
	defer connectLimiter.Close()

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("peerlink relay starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...", "timeout", cfg.ShutdownTimeout.String())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// WebSocket connections are hijacked, so the hub closes them itself.
	hub.Stop()

	logx.Info("Server gracefully stopped.")
}
