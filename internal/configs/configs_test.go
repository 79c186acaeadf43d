package configs

import (
	"testing"
	"time"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envFrom(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "development" {
		t.Fatalf("Environment=%q", cfg.Environment)
	}
	if cfg.Port != 3000 {
		t.Fatalf("Port=%d, want 3000", cfg.Port)
	}
	if cfg.MaxMessageBytes != 64*1024 {
		t.Fatalf("MaxMessageBytes=%d", cfg.MaxMessageBytes)
	}
	if cfg.ResolveReplyScope != ResolveReplySender {
		t.Fatalf("ResolveReplyScope=%q", cfg.ResolveReplyScope)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("ShutdownTimeout=%v", cfg.ShutdownTimeout)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
}

func TestLoad_ParsesOrigins(t *testing.T) {
	cfg, err := load(envFrom(map[string]string{
		"ENVIRONMENT":     "production",
		"ALLOWED_ORIGINS": " https://a.example , ,https://b.example",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad port":           {"PORT": "http"},
		"privileged port":    {"PORT": "80"},
		"production origins": {"ENVIRONMENT": "production"},
		"bad resolve scope":  {"RESOLVE_REPLY_SCOPE": "room"},
		"zero message bytes": {"MAX_MESSAGE_BYTES": "0"},
		"bad rate":           {"MESSAGES_PER_SECOND": "fast"},
		"bad shutdown":       {"SHUTDOWN_TIMEOUT": "soon"},
		"zero queue":         {"SEND_QUEUE_SIZE": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := load(envFrom(env)); err == nil {
				t.Fatalf("load(%v) succeeded, want error", env)
			}
		})
	}
}

func TestLoad_GlobalResolveScope(t *testing.T) {
	cfg, err := load(envFrom(map[string]string{"RESOLVE_REPLY_SCOPE": "GLOBAL"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ResolveReplyScope != ResolveReplyGlobal {
		t.Fatalf("ResolveReplyScope=%q", cfg.ResolveReplyScope)
	}
}
