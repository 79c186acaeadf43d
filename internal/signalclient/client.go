/*
Package signalclient is the peer side of the relay connection.

A Client dials the relay's WebSocket endpoint with a chosen codec, decodes every
inbound frame into a protocol.Envelope and serializes outbound events through a
single writer goroutine, so it can be handed to a negotiation.Engine as its Signaler.
*/
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"peerlink/internal/pkg/logx"
	"peerlink/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	incomingBuffer = 64
	outgoingBuffer = 64
)

// ErrClosed is returned by Send once the connection is gone.
var ErrClosed = errors.New("signaling connection closed")

type frame struct {
	frameType int
	data      []byte
}

// Client manages the WebSocket connection to the relay.
type Client struct {
	conn  *websocket.Conn
	codec protocol.Codec

	incoming chan protocol.Envelope
	outgoing chan frame

	closing   chan struct{}
	closeOnce sync.Once

	done     chan struct{}
	doneOnce sync.Once

	logger zerolog.Logger
}

// Dial connects to the relay WebSocket endpoint at serverURL, for example
// ws://localhost:3000/ws, selecting codec for both directions.
func Dial(ctx context.Context, serverURL string, codec protocol.Codec) (*Client, error) {
	if codec == nil {
		codec = protocol.JSON
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if codec.Name() != protocol.CodecJSON {
		q := u.Query()
		q.Set("codec", codec.Name())
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		codec:    codec,
		incoming: make(chan protocol.Envelope, incomingBuffer),
		outgoing: make(chan frame, outgoingBuffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logx.Component("SignalClient").With().Str("server", u.Host).Str("codec", codec.Name()).Logger(),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	c.logger.Debug().Msg("Connected to relay.")
	return c, nil
}

// Send encodes one event and queues it for the writer.
func (c *Client) Send(ctx context.Context, event string, data any) error {
	payload, err := c.codec.Encode(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- frame{frameType: c.codec.FrameType(), data: payload}:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Incoming yields decoded events in arrival order. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan protocol.Envelope {
	return c.incoming
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and waits for the connection to shut down.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	<-c.done
	return nil
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// readPump decodes frames until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		c.finish()
		close(c.incoming)
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Relay connection lost.")
			}
			return
		}

		env, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn().Err(err).Int("frame_bytes", len(data)).Msg("Dropping undecodable frame.")
			continue
		}

		select {
		case c.incoming <- env:
		case <-c.closing:
			return
		}
	}
}

// writePump writes queued frames and periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.finish()
	}()

	for {
		select {
		case f := <-c.outgoing:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(f.frameType, f.data); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing close message")
			}
			return

		case <-c.done:
			return
		}
	}
}
