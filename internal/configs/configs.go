/*
Package configs is responsible for loading and parsing the relay's configuration settings.

It configures server parameters by reading operating system environment variables,
including the running environment, port, allowed WebSocket origins, per-connection
message limits, connection admission rates and the by-name resolution reply scope.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// ResolveReplySender answers room-join-by-name requests to the requesting connection only.
	ResolveReplySender = "sender"

	// ResolveReplyGlobal broadcasts room-join-by-name answers to every connection.
	ResolveReplyGlobal = "global"
)

// AppConfig contains all configuration parameters required for the relay to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int
	LogLevel    string

	// Security Settings
	AllowedOrigins []string

	// Signaling Limits
	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
	SendQueueSize     int

	// Connection Admission (per client IP)
	ConnectRate  float64
	ConnectBurst int

	// Protocol Behaviour
	ResolveReplyScope string

	// Shutdown
	ShutdownTimeout time.Duration
}

// IsDevelopment reports whether the relay runs with development defaults.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the relay configuration from environment variables.
// It provides default values for each configuration item and performs necessary type conversions and validation.
// It returns a pointer to the AppConfig struct and any error encountered.
func LoadConfig() (*AppConfig, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	port, err := intVar(getenv, "PORT", 3000)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL")))

	// --- Security Settings ---
	originsStr := getenv("ALLOWED_ORIGINS")
	cfg.AllowedOrigins = []string{}
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	if !cfg.IsDevelopment() && len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS environment variable is required in %s environment", cfg.Environment)
	}

	// --- Signaling Limits ---
	maxBytes, err := intVar(getenv, "MAX_MESSAGE_BYTES", 64*1024)
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("MAX_MESSAGE_BYTES must be positive, got %d", maxBytes)
	}
	cfg.MaxMessageBytes = int64(maxBytes)

	mps, err := floatVar(getenv, "MESSAGES_PER_SECOND", 50)
	if err != nil {
		return nil, err
	}
	if mps <= 0 {
		return nil, fmt.Errorf("MESSAGES_PER_SECOND must be positive, got %v", mps)
	}
	cfg.MessagesPerSecond = mps

	if cfg.MessageBurst, err = intVar(getenv, "MESSAGE_BURST", 100); err != nil {
		return nil, err
	}

	if cfg.SendQueueSize, err = intVar(getenv, "SEND_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.SendQueueSize <= 0 {
		return nil, fmt.Errorf("SEND_QUEUE_SIZE must be positive, got %d", cfg.SendQueueSize)
	}

	// --- Connection Admission ---
	if cfg.ConnectRate, err = floatVar(getenv, "CONNECT_RATE", 1); err != nil {
		return nil, err
	}
	if cfg.ConnectBurst, err = intVar(getenv, "CONNECT_BURST", 10); err != nil {
		return nil, err
	}

	// --- Protocol Behaviour ---
	cfg.ResolveReplyScope = strings.ToLower(strings.TrimSpace(getenv("RESOLVE_REPLY_SCOPE")))
	switch cfg.ResolveReplyScope {
	case "":
		cfg.ResolveReplyScope = ResolveReplySender
	case ResolveReplySender, ResolveReplyGlobal:
	default:
		return nil, fmt.Errorf("invalid RESOLVE_REPLY_SCOPE %q (want %q or %q)", cfg.ResolveReplyScope, ResolveReplySender, ResolveReplyGlobal)
	}

	// --- Shutdown ---
	shutdownStr := getenv("SHUTDOWN_TIMEOUT")
	if shutdownStr == "" {
		shutdownStr = "5s"
	}
	shutdown, err := time.ParseDuration(shutdownStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT environment variable: %w", err)
	}
	cfg.ShutdownTimeout = shutdown

	return cfg, nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func floatVar(getenv func(string) string, key string, def float64) (float64, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
