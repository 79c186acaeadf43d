/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for codec
selection, upgrading the HTTP connection to WebSocket, and starting the client
lifecycle on the relay hub.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"peerlink/internal/app/relay"
	"peerlink/internal/pkg/errs"
	"peerlink/internal/pkg/logx"
	"peerlink/internal/pkg/randx"
	"peerlink/internal/pkg/resp"
	"peerlink/internal/protocol"
)

// HandleWebSocket creates an HTTP HandlerFunc that upgrades signaling connections.
// The optional "codec" query parameter selects json (default) or msgpack framing.
// Admission rate limiting is applied by the router in front of this handler.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.LookupCodec(r.URL.Query().Get("codec"))
		if err != nil {
			logx.Warn("WebSocket request rejected: Unknown codec.", "codec", r.URL.Query().Get("codec"))
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Warn("Failed to upgrade connection to WebSocket", "error", err.Error())
			return
		}

		client := relay.NewClient(deps.Hub, conn, randx.ConnectionHandle(), codec)

		if !deps.Hub.Register(client) {
			logx.Info("WebSocket connection dropped: relay is shutting down.")
			conn.Close()
			return
		}

		go client.WritePump()

		client.ReadPump()
	}
}
