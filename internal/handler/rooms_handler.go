/*
Package handler provides HTTP handler functions for inspecting the relay state.
*/
package handler

import (
	"net/http"

	"peerlink/internal/pkg/resp"
	"peerlink/internal/protocol"
)

// HandleListRooms returns the current room listing in the same shape as the rooms-list event.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, protocol.RoomsList{Rooms: deps.Registry.ListRooms()})
	}
}

// HandleHealth reports liveness together with connection and registry counts.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := deps.Registry.Stats()

		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "peerlink relay",
			"connections": deps.Hub.ClientCount(),
			"users":       stats.Users,
			"rooms":       stats.Rooms,
			"groups":      stats.Groups,
		})
	}
}
