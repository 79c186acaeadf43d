/*
Package relay contains the signaling relay: the per-connection Client and the Hub that dispatches their events.

This file defines the Hub struct, the single goroutine through which every inbound
event and every disconnect flows. Registry mutations and the room-list broadcasts
they trigger therefore happen in one order for all connections, and sends never
block: a client whose queue is full is evicted once the current event finishes.
*/
package relay

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"peerlink/internal/app/registry"
	"peerlink/internal/configs"
	"peerlink/internal/pkg/errs"
	"peerlink/internal/pkg/logx"
	"peerlink/internal/protocol"
)

// inbound is one decoded event, the reason a frame was rejected before
// dispatch, or a disconnect. Disconnects share the channel with events so a
// client's last frames are handled before its cleanup.
type inbound struct {
	client *Client
	env    protocol.Envelope
	err    *errs.CustomError
	leave  bool
}

// Hub owns dispatch for every connected Client.
type Hub struct {
	registry *registry.Registry

	// Config holds the application's read-only configuration settings.
	config *configs.AppConfig

	// clients maps connection handles to live clients. Written only by the Run goroutine.
	clients map[string]*Client

	// mu protects clients for readers outside the Run goroutine.
	mu sync.RWMutex

	register chan *Client
	inbound  chan inbound

	// slow collects clients whose queue overflowed during the current event.
	slow []*Client

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}

	logger zerolog.Logger
}

// NewHub constructs a Hub over reg and installs it as the registry's listing hook.
func NewHub(reg *registry.Registry, cfg *configs.AppConfig) *Hub {
	h := &Hub{
		registry: reg,
		config:   cfg,
		clients:  make(map[string]*Client),
		register: make(chan *Client),
		inbound:  make(chan inbound, 64),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logx.Component("Hub"),
	}

	reg.OnRoomsChanged(h.broadcastRooms)

	return h
}

// Run processes registrations, inbound events and disconnects until Stop is called.
func (h *Hub) Run() {
	h.logger.Info().Msg("Hub loop started.")

	defer func() {
		h.mu.Lock()
		for handle, client := range h.clients {
			client.closeCode = websocket.CloseGoingAway
			close(client.send)
			delete(h.clients, handle)
		}
		h.mu.Unlock()

		close(h.done)
		h.logger.Info().Msg("Hub loop stopped.")
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.handle] = client
			h.mu.Unlock()

			client.logger.Info().Int("total_clients", len(h.clients)).Msg("Client connected.")

		case in := <-h.inbound:
			switch {
			case in.leave:
				h.disconnect(in.client)
			case !h.live(in.client):
				// evicted while this frame was queued
			case in.err != nil:
				h.sendError(in.client, in.err, "")
			default:
				h.dispatch(in.client, in.env)
			}

		case <-h.stopChan:
			return
		}

		h.evictSlow()
	}
}

// Stop ends the Run loop and closes every client queue. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.logger.Info().Msg("Received stop signal. Stopping hub.")
		close(h.stopChan)
	})
	<-h.done
}

// Register adds a client. It returns false if the Hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister schedules disconnect cleanup for a client after any of its
// frames already submitted.
func (h *Hub) Unregister(c *Client) {
	h.submit(inbound{client: c, leave: true})
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) live(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.clients[c.handle] == c
}

func (h *Hub) submit(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// disconnect removes the client, its user and every room that user hosts.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.handle]
	if !ok || current != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.handle)
	h.mu.Unlock()

	close(c.send)

	h.registry.LeaveAllGroups(c.handle)
	h.registry.RemoveUser(c.handle)

	c.logger.Info().Int("total_clients", h.ClientCount()).Msg("Client disconnected.")
}

func (h *Hub) evictSlow() {
	for len(h.slow) > 0 {
		c := h.slow[0]
		h.slow = h.slow[1:]

		c.logger.Warn().Msg("Evicting slow consumer.")
		c.closeCode = WsCloseCodeSlowConsumer
		h.disconnect(c)
	}
}

func (h *Hub) markSlow(c *Client) {
	for _, s := range h.slow {
		if s == c {
			return
		}
	}
	h.slow = append(h.slow, c)
}

// sendTo encodes one event with the client's codec and queues it.
func (h *Hub) sendTo(c *Client, event string, data any) {
	frame, err := c.codec.Encode(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to encode frame.")
		return
	}

	if !c.enqueue(outbound{frameType: c.codec.FrameType(), data: frame}) {
		h.markSlow(c)
	}
}

// fanOut sends one event to every target except the connection exclude,
// encoding at most once per codec. It returns the number of frames queued.
func (h *Hub) fanOut(targets []*Client, exclude, event string, data any) int {
	frames := make(map[string][]byte, 2)
	sent := 0

	for _, c := range targets {
		if c.handle == exclude {
			continue
		}

		frame, ok := frames[c.codec.Name()]
		if !ok {
			var err error
			if frame, err = c.codec.Encode(event, data); err != nil {
				h.logger.Error().Err(err).Str("event", event).Str("codec", c.codec.Name()).Msg("Failed to encode broadcast frame.")
				continue
			}
			frames[c.codec.Name()] = frame
		}

		if !c.enqueue(outbound{frameType: c.codec.FrameType(), data: frame}) {
			h.markSlow(c)
			continue
		}
		sent++
	}
	return sent
}

// broadcastAll sends an event to every live connection.
func (h *Hub) broadcastAll(event string, data any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.fanOut(targets, "", event, data)
}

// broadcastGroup sends an event to the connections grouped under roomID, except exclude.
func (h *Hub) broadcastGroup(roomID, exclude, event string, data any) int {
	handles := h.registry.GroupMembers(roomID)

	h.mu.RLock()
	targets := make([]*Client, 0, len(handles))
	for _, handle := range handles {
		if c, ok := h.clients[handle]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	return h.fanOut(targets, exclude, event, data)
}

// broadcastRooms is the registry hook. It runs under the registry lock, so it
// only reads hub state and queues frames.
func (h *Hub) broadcastRooms(rooms []protocol.RoomSummary) {
	h.broadcastAll(protocol.EventRoomsList, protocol.RoomsList{Rooms: rooms})
}

// sendError replies with an error event describing why a request was rejected.
func (h *Hub) sendError(c *Client, customErr *errs.CustomError, event string) {
	c.logger.Warn().
		Int("code", customErr.Code).
		Str("event", event).
		Msg(customErr.Message)

	h.sendTo(c, protocol.EventError, protocol.ErrorPayload{
		Code:    customErr.Code,
		Message: customErr.Message,
		Event:   event,
	})
}
