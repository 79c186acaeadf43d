package negotiation

import (
	"context"

	"peerlink/internal/protocol"
)

// ConnectionState mirrors the peer connection states a Transport reports.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
	ConnectionStateDisconnected
	ConnectionStateFailed
	ConnectionStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	}
	return "unknown"
}

// Track is a media track, local or remote.
type Track interface {
	ID() string
	StreamID() string
	Kind() string
}

// Transport is the peer connection capability the engine drives.
// Callbacks may fire on any goroutine.
type Transport interface {
	CreateLocalOffer(ctx context.Context) (protocol.SessionDescription, error)
	CreateLocalAnswer(ctx context.Context) (protocol.SessionDescription, error)
	SetLocalDescription(desc protocol.SessionDescription) error
	SetRemoteDescription(desc protocol.SessionDescription) error

	// OnConnectivityCandidate registers the gathering callback. A nil
	// candidate signals that gathering is complete.
	OnConnectivityCandidate(fn func(*protocol.Candidate))
	AddConnectivityCandidate(c protocol.Candidate) error

	OnConnectionStateChange(fn func(ConnectionState))

	AcquireLocalMediaTracks(ctx context.Context) ([]Track, error)
	AttachTrack(track Track) error
	OnRemoteTrack(fn func(Track))

	Close() error
}

// TransportFactory creates a fresh Transport for each negotiation attempt.
type TransportFactory func() (Transport, error)

// Signaler is the engine's channel to the relay.
type Signaler interface {
	Send(ctx context.Context, event string, data any) error

	// Incoming yields decoded events in the order the relay sent them.
	Incoming() <-chan protocol.Envelope

	// Done is closed when the channel is gone.
	Done() <-chan struct{}
}
