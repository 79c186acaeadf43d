package handler

import (
	"peerlink/internal/app/registry"
	"peerlink/internal/app/relay"
	"peerlink/internal/configs"
)

// AppDeps bundles what the HTTP layer needs from the running relay.
type AppDeps struct {
	Registry *registry.Registry
	Hub      *relay.Hub
	Config   *configs.AppConfig
}
