package main

import (
	"fmt"
	"strings"
	"time"

	"peerlink/internal/protocol"
)

// Default configuration values
const (
	DefaultServer   = "ws://localhost:3000/ws"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultNickname = "peer"
	DefaultTimeout  = 30 * time.Second
)

// peerConfig holds the resolved client configuration.
type peerConfig struct {
	// Server is the relay WebSocket URL.
	Server string

	// STUNServers for ICE gathering.
	STUNServers []string

	Nickname string
	Codec    protocol.Codec
	Trickle  bool
	Timeout  time.Duration
}

// options carries CLI flag values. Zero values fall through to the environment.
type options struct {
	Server   string
	STUN     string
	Nickname string
	Codec    string
	Trickle  bool
	Timeout  time.Duration
}

// loadConfig resolves configuration with the following priority:
// 1. CLI flags (passed via options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func loadConfig(opts options, getenv func(string) string) (*peerConfig, error) {
	cfg := &peerConfig{
		Server:   firstNonEmpty(opts.Server, getenv("PEERLINK_SERVER"), DefaultServer),
		Nickname: firstNonEmpty(opts.Nickname, getenv("PEERLINK_NICKNAME"), getenv("USER"), DefaultNickname),
		Trickle:  opts.Trickle || strings.EqualFold(getenv("PEERLINK_TRICKLE"), "true"),
		Timeout:  opts.Timeout,
	}

	for _, s := range strings.Split(firstNonEmpty(opts.STUN, getenv("STUN_SERVER"), DefaultSTUN), ",") {
		if s = strings.TrimSpace(s); s != "" && s != "none" {
			cfg.STUNServers = append(cfg.STUNServers, s)
		}
	}

	codec, err := protocol.LookupCodec(firstNonEmpty(opts.Codec, getenv("PEERLINK_CODEC")))
	if err != nil {
		return nil, err
	}
	cfg.Codec = codec

	if cfg.Timeout == 0 {
		raw := getenv("PEERLINK_TIMEOUT")
		if raw == "" {
			cfg.Timeout = DefaultTimeout
		} else if cfg.Timeout, err = time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("invalid PEERLINK_TIMEOUT environment variable: %w", err)
		}
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}

	if n := len([]rune(cfg.Nickname)); n > protocol.MaxNicknameRunes {
		return nil, fmt.Errorf("nickname has %d characters, max %d", n, protocol.MaxNicknameRunes)
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
