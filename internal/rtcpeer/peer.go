/*
Package rtcpeer adapts a pion PeerConnection to the negotiation.Transport capability.

Local media comes from static sample tracks (opus audio and vp8 video): a Go
process has no capture devices, so callers that want to send media write samples
into the tracks themselves.
*/
package rtcpeer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"peerlink/internal/negotiation"
	"peerlink/internal/pkg/logx"
	"peerlink/internal/protocol"
)

// ErrForeignTrack is returned by AttachTrack for tracks this package did not create.
var ErrForeignTrack = errors.New("track was not created by rtcpeer")

// Config configures every Peer created from it.
type Config struct {
	// STUNServers are the ICE server URLs, e.g. stun:stun.l.google.com:19302.
	STUNServers []string

	// LoggerFactory receives pion's internal logs. Defaults to NewLoggerFactory.
	LoggerFactory logging.LoggerFactory
}

// Peer is one pion PeerConnection.
type Peer struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
}

// NewFactory returns a TransportFactory creating a fresh Peer per attempt.
func NewFactory(cfg Config) negotiation.TransportFactory {
	return func() (negotiation.Transport, error) {
		return New(cfg)
	}
}

// New creates a PeerConnection with the default codecs registered.
func New(cfg Config) (*Peer, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = cfg.LoggerFactory
	if se.LoggerFactory == nil {
		se.LoggerFactory = NewLoggerFactory()
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))

	var iceServers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.STUNServers}}
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return &Peer{pc: pc, logger: logx.Component("Peer")}, nil
}

func (p *Peer) CreateLocalOffer(ctx context.Context) (protocol.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return protocol.SessionDescription{}, err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return fromPionDescription(offer), nil
}

func (p *Peer) CreateLocalAnswer(ctx context.Context) (protocol.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return protocol.SessionDescription{}, err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return fromPionDescription(answer), nil
}

func (p *Peer) SetLocalDescription(desc protocol.SessionDescription) error {
	pd, err := toPionDescription(desc)
	if err != nil {
		return err
	}
	return p.pc.SetLocalDescription(pd)
}

func (p *Peer) SetRemoteDescription(desc protocol.SessionDescription) error {
	pd, err := toPionDescription(desc)
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(pd)
}

// OnConnectivityCandidate reports each gathered candidate, then nil once
// gathering completes.
func (p *Peer) OnConnectivityCandidate(fn func(*protocol.Candidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		candidate := fromCandidateInit(c.ToJSON())
		fn(&candidate)
	})
}

func (p *Peer) AddConnectivityCandidate(c protocol.Candidate) error {
	return p.pc.AddICECandidate(toCandidateInit(c))
}

func (p *Peer) OnConnectionStateChange(fn func(negotiation.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(connectionState(s))
	})
}

// AcquireLocalMediaTracks creates one opus and one vp8 track sharing a stream id.
func (p *Peer) AcquireLocalMediaTracks(ctx context.Context) ([]negotiation.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "peerlink-" + uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	return []negotiation.Track{&LocalTrack{sample: audio}, &LocalTrack{sample: video}}, nil
}

// AttachTrack adds a track from AcquireLocalMediaTracks to the connection.
func (p *Peer) AttachTrack(track negotiation.Track) error {
	local, ok := track.(*LocalTrack)
	if !ok {
		return ErrForeignTrack
	}

	sender, err := p.pc.AddTrack(local.sample)
	if err != nil {
		return fmt.Errorf("add %s track: %w", local.Kind(), err)
	}

	// Drain RTCP so the sender keeps processing feedback.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *Peer) OnRemoteTrack(fn func(negotiation.Track)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Debug().
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("kind", track.Kind().String()).
			Msg("Remote track received.")
		fn(&RemoteTrack{remote: track})
	})
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

// LocalTrack is a sample-fed local track.
type LocalTrack struct {
	sample *webrtc.TrackLocalStaticSample
}

func (t *LocalTrack) ID() string       { return t.sample.ID() }
func (t *LocalTrack) StreamID() string { return t.sample.StreamID() }
func (t *LocalTrack) Kind() string     { return t.sample.Kind().String() }

// Sample exposes the pion track for writing media samples.
func (t *LocalTrack) Sample() *webrtc.TrackLocalStaticSample { return t.sample }

// RemoteTrack is a track received from the peer.
type RemoteTrack struct {
	remote *webrtc.TrackRemote
}

func (t *RemoteTrack) ID() string       { return t.remote.ID() }
func (t *RemoteTrack) StreamID() string { return t.remote.StreamID() }
func (t *RemoteTrack) Kind() string     { return t.remote.Kind().String() }

// Remote exposes the pion track for reading RTP.
func (t *RemoteTrack) Remote() *webrtc.TrackRemote { return t.remote }

func fromPionDescription(d webrtc.SessionDescription) protocol.SessionDescription {
	return protocol.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func toPionDescription(d protocol.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(d.Type)
	if t == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("unknown session description type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func fromCandidateInit(c webrtc.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toCandidateInit(c protocol.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func connectionState(s webrtc.PeerConnectionState) negotiation.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return negotiation.ConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return negotiation.ConnectionStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return negotiation.ConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return negotiation.ConnectionStateFailed
	case webrtc.PeerConnectionStateClosed:
		return negotiation.ConnectionStateClosed
	}
	return negotiation.ConnectionStateNew
}
