package rtcpeer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"peerlink/internal/negotiation"
	"peerlink/internal/protocol"
)

func newPeer(t *testing.T) *Peer {
	t.Helper()

	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func attachLocalMedia(t *testing.T, p *Peer) []negotiation.Track {
	t.Helper()

	tracks, err := p.AcquireLocalMediaTracks(context.Background())
	if err != nil {
		t.Fatalf("AcquireLocalMediaTracks() error = %v", err)
	}
	for _, track := range tracks {
		if err := p.AttachTrack(track); err != nil {
			t.Fatalf("AttachTrack(%s) error = %v", track.Kind(), err)
		}
	}
	return tracks
}

func TestPeer_LocalTracksShareStream(t *testing.T) {
	p := newPeer(t)
	tracks := attachLocalMedia(t, p)

	if len(tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(tracks))
	}
	if tracks[0].Kind() != "audio" || tracks[1].Kind() != "video" {
		t.Fatalf("kinds = %s, %s; want audio, video", tracks[0].Kind(), tracks[1].Kind())
	}
	if tracks[0].StreamID() != tracks[1].StreamID() || !strings.HasPrefix(tracks[0].StreamID(), "peerlink-") {
		t.Fatalf("stream ids = %q, %q; want one shared peerlink- stream", tracks[0].StreamID(), tracks[1].StreamID())
	}
}

func TestPeer_OfferCarriesLocalMedia(t *testing.T) {
	p := newPeer(t)
	attachLocalMedia(t, p)

	offer, err := p.CreateLocalOffer(context.Background())
	if err != nil {
		t.Fatalf("CreateLocalOffer() error = %v", err)
	}
	if offer.Type != "offer" {
		t.Fatalf("offer type = %q, want offer", offer.Type)
	}
	for _, section := range []string{"m=audio", "m=video"} {
		if !strings.Contains(offer.SDP, section) {
			t.Fatalf("offer SDP missing %s", section)
		}
	}
}

func TestPeer_CreateOfferHonoursContext(t *testing.T) {
	p := newPeer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.CreateLocalOffer(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("CreateLocalOffer() error = %v, want context.Canceled", err)
	}
	if _, err := p.AcquireLocalMediaTracks(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("AcquireLocalMediaTracks() error = %v, want context.Canceled", err)
	}
}

func TestPeer_GatheringEndsWithNil(t *testing.T) {
	p := newPeer(t)
	attachLocalMedia(t, p)

	complete := make(chan struct{})
	var once sync.Once
	p.OnConnectivityCandidate(func(c *protocol.Candidate) {
		if c == nil {
			once.Do(func() { close(complete) })
			return
		}
		if c.Candidate == "" {
			t.Errorf("gathered an empty candidate")
		}
	})

	offer, err := p.CreateLocalOffer(context.Background())
	if err != nil {
		t.Fatalf("CreateLocalOffer() error = %v", err)
	}
	if err := p.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription() error = %v", err)
	}

	select {
	case <-complete:
	case <-time.After(10 * time.Second):
		t.Fatal("gathering never completed")
	}
}

func TestPeer_RejectsUnknownDescriptionType(t *testing.T) {
	p := newPeer(t)

	err := p.SetRemoteDescription(protocol.SessionDescription{Type: "bogus", SDP: "v=0"})
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("SetRemoteDescription(bogus) error = %v, want unknown type", err)
	}
}

type otherTrack struct{}

func (otherTrack) ID() string       { return "x" }
func (otherTrack) StreamID() string { return "x" }
func (otherTrack) Kind() string     { return "video" }

func TestPeer_AttachRejectsForeignTrack(t *testing.T) {
	p := newPeer(t)

	if err := p.AttachTrack(otherTrack{}); !errors.Is(err, ErrForeignTrack) {
		t.Fatalf("AttachTrack(foreign) error = %v, want ErrForeignTrack", err)
	}
}

func TestConnectionState(t *testing.T) {
	tests := []struct {
		in   webrtc.PeerConnectionState
		want negotiation.ConnectionState
	}{
		{webrtc.PeerConnectionStateNew, negotiation.ConnectionStateNew},
		{webrtc.PeerConnectionStateConnecting, negotiation.ConnectionStateConnecting},
		{webrtc.PeerConnectionStateConnected, negotiation.ConnectionStateConnected},
		{webrtc.PeerConnectionStateDisconnected, negotiation.ConnectionStateDisconnected},
		{webrtc.PeerConnectionStateFailed, negotiation.ConnectionStateFailed},
		{webrtc.PeerConnectionStateClosed, negotiation.ConnectionStateClosed},
		{webrtc.PeerConnectionStateUnknown, negotiation.ConnectionStateNew},
	}

	for _, tt := range tests {
		if got := connectionState(tt.in); got != tt.want {
			t.Errorf("connectionState(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCandidateInitConversion(t *testing.T) {
	mid := "0"
	index := uint16(1)
	ufrag := "abcd"

	in := protocol.Candidate{
		Candidate:        "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host",
		SDPMid:           &mid,
		SDPMLineIndex:    &index,
		UsernameFragment: &ufrag,
	}

	ice := toCandidateInit(in)
	if ice.Candidate != in.Candidate || *ice.SDPMid != "0" || *ice.SDPMLineIndex != 1 || *ice.UsernameFragment != "abcd" {
		t.Fatalf("toCandidateInit() = %+v", ice)
	}

	out := fromCandidateInit(ice)
	if out.Candidate != in.Candidate || *out.SDPMid != mid || *out.SDPMLineIndex != index || *out.UsernameFragment != ufrag {
		t.Fatalf("fromCandidateInit() = %+v, want %+v", out, in)
	}

	bare := fromCandidateInit(webrtc.ICECandidateInit{Candidate: "c"})
	if bare.SDPMid != nil || bare.SDPMLineIndex != nil || bare.UsernameFragment != nil {
		t.Fatalf("fromCandidateInit(bare) = %+v, want nil optional fields", bare)
	}
}

// TestPeers_Connect wires two peers back to back the way the engine does:
// offer, answer, then each side's candidate batch once gathering completes.
func TestPeers_Connect(t *testing.T) {
	offerer := newPeer(t)
	answerer := newPeer(t)
	attachLocalMedia(t, offerer)
	attachLocalMedia(t, answerer)

	connected := func(p *Peer) <-chan struct{} {
		ch := make(chan struct{})
		var once sync.Once
		p.OnConnectionStateChange(func(s negotiation.ConnectionState) {
			if s == negotiation.ConnectionStateConnected {
				once.Do(func() { close(ch) })
			}
		})
		return ch
	}
	gathered := func(p *Peer) <-chan []protocol.Candidate {
		ch := make(chan []protocol.Candidate, 1)
		var batch []protocol.Candidate
		p.OnConnectivityCandidate(func(c *protocol.Candidate) {
			if c == nil {
				select {
				case ch <- batch:
				default:
				}
				return
			}
			batch = append(batch, *c)
		})
		return ch
	}

	offererUp, answererUp := connected(offerer), connected(answerer)
	offererCands, answererCands := gathered(offerer), gathered(answerer)

	ctx := context.Background()
	offer, err := offerer.CreateLocalOffer(ctx)
	if err != nil {
		t.Fatalf("CreateLocalOffer() error = %v", err)
	}
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("offerer SetLocalDescription() error = %v", err)
	}
	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("answerer SetRemoteDescription() error = %v", err)
	}

	answer, err := answerer.CreateLocalAnswer(ctx)
	if err != nil {
		t.Fatalf("CreateLocalAnswer() error = %v", err)
	}
	if answer.Type != "answer" {
		t.Fatalf("answer type = %q, want answer", answer.Type)
	}
	if err := answerer.SetLocalDescription(answer); err != nil {
		t.Fatalf("answerer SetLocalDescription() error = %v", err)
	}
	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("offerer SetRemoteDescription() error = %v", err)
	}

	exchange := func(from <-chan []protocol.Candidate, to *Peer) {
		select {
		case batch := <-from:
			for _, c := range batch {
				if err := to.AddConnectivityCandidate(c); err != nil {
					t.Fatalf("AddConnectivityCandidate(%s) error = %v", c.Candidate, err)
				}
			}
		case <-time.After(10 * time.Second):
			t.Fatal("gathering never completed")
		}
	}
	exchange(offererCands, answerer)
	exchange(answererCands, offerer)

	for name, up := range map[string]<-chan struct{}{"offerer": offererUp, "answerer": answererUp} {
		select {
		case <-up:
		case <-time.After(15 * time.Second):
			t.Fatalf("%s never connected", name)
		}
	}
}

func TestLoggerFactory_RoutesScopes(t *testing.T) {
	var buf bytes.Buffer
	factory := newLoggerFactory(zerolog.New(&buf).Level(zerolog.DebugLevel))

	logger := factory.NewLogger("ice")
	logger.Warnf("candidate %d dropped", 3)
	logger.Infof("gathering %s", "done")
	logger.Debug("filtered at debug level")

	out := buf.String()
	for _, want := range []string{`"scope":"ice"`, `"level":"warn"`, `candidate 3 dropped`, `"level":"debug"`, `gathering done`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %s", out, want)
		}
	}
	if strings.Contains(out, "filtered at debug level") {
		t.Fatalf("pion debug message leaked at debug level: %q", out)
	}
}
