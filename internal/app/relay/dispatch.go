package relay

import (
	"peerlink/internal/app/registry"
	"peerlink/internal/configs"
	"peerlink/internal/pkg/errs"
	"peerlink/internal/pkg/randx"
	"peerlink/internal/protocol"
)

// validator is implemented by payloads that check their own fields.
type validator interface {
	Validate() error
}

// dispatch routes one event. It runs on the Hub goroutine.
func (h *Hub) dispatch(c *Client, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventUserAnnounce:
		h.handleAnnounce(c, env)

	case protocol.EventRoomsListRequest:
		h.sendTo(c, protocol.EventRoomsList, protocol.RoomsList{Rooms: h.registry.ListRooms()})

	case protocol.EventRoomHostRequest:
		h.handleHost(c, env)

	case protocol.EventRoomJoinRequest:
		h.handleJoin(c, env)

	case protocol.EventRoomJoinByName:
		h.handleJoinByName(c, env)

	case protocol.EventSessionOffer, protocol.EventSessionAnswer, protocol.EventCandidatesExchange:
		h.handleRelay(c, env)

	default:
		h.sendError(c, errs.NewError(errs.ErrUnsupportedEvent, env.Event), env.Event)
	}
}

// bind decodes and validates a payload, replying with InvalidParams on failure.
func (h *Hub) bind(c *Client, env protocol.Envelope, dst validator) bool {
	if err := env.Bind(dst); err != nil {
		c.logger.Debug().Err(err).Str("event", env.Event).Msg("Payload does not match event")
		h.sendError(c, errs.NewError(errs.ErrInvalidParams), env.Event)
		return false
	}
	if err := dst.Validate(); err != nil {
		c.logger.Debug().Err(err).Str("event", env.Event).Msg("Payload failed validation")
		h.sendError(c, errs.NewError(errs.ErrInvalidParams), env.Event)
		return false
	}
	return true
}

func (h *Hub) handleAnnounce(c *Client, env protocol.Envelope) {
	var req protocol.Announce
	if !h.bind(c, env, &req) {
		return
	}

	u := h.registry.RegisterUser(c.handle, req.Nickname)
	c.logger.Info().Str("user_id", u.ID).Msg("User announced.")

	h.sendTo(c, protocol.EventUserIDAssigned, protocol.UserIDAssigned{ID: u.ID})
}

func (h *Hub) handleHost(c *Client, env protocol.Envelope) {
	if _, ok := h.registry.LookupUser(c.handle); !ok {
		h.sendError(c, errs.NewError(errs.ErrUserNotRegistered), env.Event)
		return
	}

	var req protocol.HostRequest
	if !h.bind(c, env, &req) {
		return
	}

	room, err := h.registry.CreateRoom(c.handle, req.Name)
	if err != nil {
		h.replyErr(c, err, env.Event)
		return
	}
	h.registry.JoinGroup(room.ID, c.handle)

	h.sendTo(c, protocol.EventRoomHosted, protocol.RoomHosted{RoomID: room.ID})
}

func (h *Hub) handleJoin(c *Client, env protocol.Envelope) {
	if _, ok := h.registry.LookupUser(c.handle); !ok {
		h.sendError(c, errs.NewError(errs.ErrUserNotRegistered), env.Event)
		return
	}

	var req protocol.JoinRequest
	if !h.bind(c, env, &req) {
		return
	}

	var (
		room  registry.Room
		found bool
	)
	if randx.IsValidID(req.RoomID) {
		room, found = h.registry.GetRoom(req.RoomID)
	}
	if !found {
		c.logger.Info().Str("room_id", req.RoomID).Msg("Join rejected: room not found.")
		h.sendTo(c, protocol.EventRoomJoinResult, protocol.JoinResult{Success: false})
		return
	}

	if err := h.registry.JoinRoom(room.ID, c.handle); err != nil {
		if errs.Is(err, errs.ErrRoomNotFound) {
			h.sendTo(c, protocol.EventRoomJoinResult, protocol.JoinResult{Success: false})
			return
		}
		h.replyErr(c, err, env.Event)
		return
	}
	h.registry.JoinGroup(room.ID, c.handle)

	h.sendTo(c, protocol.EventRoomJoinResult, protocol.JoinResult{Success: true})

	if room.HostedBy(c.handle) {
		return
	}
	notified := h.broadcastGroup(room.ID, c.handle, protocol.EventPeerJoined, protocol.PeerJoined{})
	c.logger.Info().Str("room_id", room.ID).Int("notified", notified).Msg("Joined room.")
}

func (h *Hub) handleJoinByName(c *Client, env protocol.Envelope) {
	var req protocol.JoinByNameRequest
	if !h.bind(c, env, &req) {
		return
	}

	result := protocol.JoinByNameResult{RoomID: protocol.NoSuchRoom}
	if room, ok := h.registry.FindRoomByName(req.Name); ok {
		result.RoomID = room.ID

		if n := h.registry.CountRoomsByName(req.Name); n > 1 {
			ambiguous := errs.NewError(errs.ErrAmbiguousRoomName, req.Name, n)
			c.logger.Warn().Int("code", ambiguous.Code).Str("room_id", room.ID).Msg(ambiguous.Message)
		}
	}

	if h.config.ResolveReplyScope == configs.ResolveReplyGlobal {
		h.broadcastAll(protocol.EventRoomJoinByNameDone, result)
		return
	}
	h.sendTo(c, protocol.EventRoomJoinByNameDone, result)
}

// handleRelay forwards offers, answers and candidate batches to the rest of the room's group.
func (h *Hub) handleRelay(c *Client, env protocol.Envelope) {
	var (
		roomID  string
		payload any
	)

	switch env.Event {
	case protocol.EventCandidatesExchange:
		var msg protocol.CandidatesExchange
		if !h.bind(c, env, &msg) {
			return
		}
		roomID, payload = msg.RoomID, msg

	default:
		var msg protocol.SessionMessage
		if err := env.Bind(&msg); err != nil || msg.ValidateFor(env.Event) != nil {
			h.sendError(c, errs.NewError(errs.ErrInvalidParams), env.Event)
			return
		}
		roomID, payload = msg.RoomID, msg
	}

	if !h.registry.InGroup(roomID, c.handle) {
		h.sendError(c, errs.NewError(errs.ErrNotInRoom), env.Event)
		return
	}

	h.broadcastGroup(roomID, c.handle, env.Event, payload)
}

func (h *Hub) replyErr(c *Client, err error, event string) {
	if customErr, ok := err.(*errs.CustomError); ok {
		h.sendError(c, customErr, event)
		return
	}
	h.sendError(c, errs.NewError(errs.ErrUnknown, err), event)
}
