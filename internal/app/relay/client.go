/*
Package relay contains the signaling relay: the per-connection Client and the Hub that dispatches their events.

This file defines the Client struct, representing one WebSocket connection. It owns
the connection's read and write loops, its wire codec and its inbound rate limiter.
A Client never touches the registry directly; every decoded frame is handed to the Hub.
*/
package relay

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"peerlink/internal/pkg/errs"
	"peerlink/internal/pkg/logx"
	"peerlink/internal/protocol"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// WsCloseCodeSlowConsumer is sent when a client's outbound queue overflowed.
	WsCloseCodeSlowConsumer = 4008
)

// outbound is one encoded frame waiting in a client's queue.
type outbound struct {
	frameType int
	data      []byte
}

// Client struct represents an active WebSocket connection.
type Client struct {
	// hub dispatches this client's events.
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// handle is the registry key for this connection.
	handle string

	// codec encodes every frame sent to this client and decodes every frame it sends.
	codec protocol.Codec

	// a buffered channel of frames waiting to be written. Only the Hub sends on or closes it.
	send chan outbound

	// limiter bounds the inbound event rate.
	limiter *rate.Limiter

	// closeCode is the close frame code written when send is closed by the Hub.
	closeCode int

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for conn. The caller starts WritePump and ReadPump.
func NewClient(hub *Hub, conn *websocket.Conn, handle string, codec protocol.Codec) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		handle:  handle,
		codec:   codec,
		send:    make(chan outbound, hub.config.SendQueueSize),
		limiter: rate.NewLimiter(rate.Limit(hub.config.MessagesPerSecond), hub.config.MessageBurst),
		logger: logx.Component("Client").With().
			Str("conn_id", handle).
			Str("codec", codec.Name()).
			Logger(),
	}
}

// ReadPump reads frames until the connection fails, then asks the Hub to
// run disconnect cleanup. It must run on its own goroutine.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(c.hub.config.MaxMessageBytes)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.logger.Warn().Int64("limit", c.hub.config.MaxMessageBytes).Msg("Frame exceeded read limit. Closing connection.")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		if !c.processInboundFrame(frame) {
			return
		}
	}
}

// processInboundFrame decodes a frame and hands it to the Hub.
// Returns false once the Hub has stopped.
func (c *Client) processInboundFrame(frame []byte) bool {
	in := inbound{client: c}

	switch env, err := c.codec.Decode(frame); {
	case !c.limiter.Allow():
		c.logger.Warn().Msg("Inbound rate limit exceeded. Dropping event.")
		in.err = errs.NewError(errs.ErrRateLimitExceeded)
	case err != nil:
		c.logger.Warn().Err(err).Int("frame_bytes", len(frame)).Msg("Client sent undecodable frame")
		in.err = errs.NewError(errs.ErrInvalidMessageFormat)
	default:
		in.env = env
	}

	return c.hub.submit(in)
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Debug().Msg("Client connection cleanup starting.")

	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump writes queued frames and periodic pings until the queue is closed
// or a write fails. It must run on its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit so ReadPump unblocks
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedFrame(frame outbound, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		code := c.closeCode
		if code == 0 {
			code = websocket.CloseNormalClosure
		}
		if err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, "")); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(frame.frameType, frame.data); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue queues a frame without blocking. Called from the Hub goroutine only.
func (c *Client) enqueue(frame outbound) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping frame")
		return false
	}
}
