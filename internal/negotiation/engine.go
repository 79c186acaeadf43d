/*
Package negotiation implements the client side of the signaling protocol.

An Engine announces itself to the relay, tracks the room listing, and drives one
offer/answer/candidate exchange at a time to a connected peer session, either as
the host of a room or as a joiner. All protocol and transport events are handled
on the single goroutine running Run, so the state machine never needs locks for
its own transitions; the mutex only guards what callers may read.
*/
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"peerlink/internal/pkg/logx"
	"peerlink/internal/protocol"
)

// State is the engine's position in the negotiation lifecycle.
type State int

const (
	StateIdle State = iota
	StateAnnounced
	StateRoomDiscoveryReady
	StateHostNegotiating
	StateJoinNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnnounced:
		return "announced"
	case StateRoomDiscoveryReady:
		return "room-discovery-ready"
	case StateHostNegotiating:
		return "host-negotiating"
	case StateJoinNegotiating:
		return "join-negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// negotiating reports whether an attempt owns a transport in this state.
func (s State) negotiating() bool {
	return s == StateHostNegotiating || s == StateJoinNegotiating || s == StateConnected
}

// DefaultNegotiationTimeout bounds an attempt from the moment both peers are
// in the room (peer-joined for the host, a successful join for the joiner) to
// Connected.
const DefaultNegotiationTimeout = 30 * time.Second

const (
	eventBuffer = 256
	errorBuffer = 16
)

// Options configures an Engine.
type Options struct {
	// Nickname is announced to the relay. Required.
	Nickname string

	// NewTransport creates the peer connection for each attempt. Required.
	NewTransport TransportFactory

	// Trickle sends every local candidate as its own one-element batch
	// instead of one batch once gathering completes.
	Trickle bool

	// NegotiationTimeout overrides DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration
}

type opKind int

const (
	opHost opKind = iota
	opJoin
	opJoinByName
)

func (k opKind) String() string {
	switch k {
	case opHost:
		return "host"
	case opJoin:
		return "join"
	}
	return "join by name"
}

type result struct {
	roomID string
	err    error
}

// command is a caller request executed on the Run goroutine.
type command struct {
	kind  opKind
	arg   string
	reply chan result
}

// answers reports whether an error event for event belongs to this command.
func (c *command) answers(event string) bool {
	switch c.kind {
	case opHost:
		return event == protocol.EventRoomHostRequest
	case opJoin:
		return event == protocol.EventRoomJoinRequest
	}
	return event == protocol.EventRoomJoinByName || event == protocol.EventRoomJoinRequest
}

// transportEvent is a transport callback, tagged with the attempt that registered it.
type transportEvent struct {
	attempt   int
	candidate *protocol.Candidate
	gathered  bool
	state     *ConnectionState
	track     Track
}

// Engine is a per-peer negotiation state machine.
type Engine struct {
	sig    Signaler
	opts   Options
	logger zerolog.Logger

	cmds    chan command
	events  chan transportEvent
	errCh   chan error
	ready   chan struct{}
	closeCh chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	running   atomic.Bool

	// mu guards the fields callers can read.
	mu           sync.RWMutex
	state        State
	changed      chan struct{}
	userID       string
	rooms        []protocol.RoomSummary
	roomID       string
	remoteTracks []Track
	attemptErr   error

	// Owned by the Run goroutine.
	pending    *command
	joinTarget string
	transport  Transport
	attempt    int
	offerSent  bool
	remoteSet  bool
	queued     []protocol.Candidate
	batch      []protocol.Candidate
	timer      *time.Timer
}

// New constructs an Engine that talks to the relay through sig.
func New(sig Signaler, opts Options) (*Engine, error) {
	if opts.Nickname == "" {
		return nil, errors.New("negotiation: nickname is required")
	}
	if opts.NewTransport == nil {
		return nil, errors.New("negotiation: transport factory is required")
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = DefaultNegotiationTimeout
	}

	return &Engine{
		sig:     sig,
		opts:    opts,
		logger:  logx.Component("Engine").With().Str("nickname", opts.Nickname).Logger(),
		cmds:    make(chan command),
		events:  make(chan transportEvent, eventBuffer),
		errCh:   make(chan error, errorBuffer),
		ready:   make(chan struct{}),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		changed: make(chan struct{}),
	}, nil
}

// Run announces the engine and processes events until ctx is cancelled, Close
// is called or the signaling channel drops. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("negotiation: engine already running")
	}
	defer e.shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := e.sig.Send(ctx, protocol.EventUserAnnounce, protocol.Announce{Nickname: e.opts.Nickname}); err != nil {
		return newError("announce", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-e.closeCh:
			return nil

		case <-e.sig.Done():
			return newError("signaling", ErrSignalingClosed)

		case env, ok := <-e.sig.Incoming():
			if !ok {
				return newError("signaling", ErrSignalingClosed)
			}
			e.handleSignal(ctx, env)

		case ev := <-e.events:
			e.handleTransport(ctx, ev)

		case cmd := <-e.cmds:
			e.handleCommand(ctx, cmd)

		case <-e.timerC():
			e.timer = nil
			e.failAttempt(newError("negotiate", ErrNegotiationTimeout))
		}
	}
}

// Host creates a room named name and waits for a peer to join it. It returns
// once the relay confirms the room; negotiation continues in the background.
func (e *Engine) Host(ctx context.Context, name string) (string, error) {
	r := e.do(ctx, opHost, name)
	return r.roomID, r.err
}

// Join joins the room with id roomID, acquires local media and waits for the
// host's offer. It returns once media is attached.
func (e *Engine) Join(ctx context.Context, roomID string) error {
	return e.do(ctx, opJoin, roomID).err
}

// JoinByName resolves name through the relay and joins the resulting room.
func (e *Engine) JoinByName(ctx context.Context, name string) (string, error) {
	r := e.do(ctx, opJoinByName, name)
	return r.roomID, r.err
}

// WaitConnected blocks until the current attempt connects or fails.
func (e *Engine) WaitConnected(ctx context.Context) error {
	for {
		e.mu.RLock()
		state, attemptErr, changed := e.state, e.attemptErr, e.changed
		e.mu.RUnlock()

		switch {
		case state == StateConnected:
			return nil
		case state == StateClosed:
			return ErrClosed
		case attemptErr != nil && state == StateRoomDiscoveryReady:
			return attemptErr
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the engine, closing any transport. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closeCh) })
	if e.running.Load() {
		<-e.done
	}
	return nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

// UserID returns the id the relay assigned, empty before announce completes.
func (e *Engine) UserID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.userID
}

// RoomID returns the room of the current attempt, empty when none is active.
func (e *Engine) RoomID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.roomID
}

// Rooms returns the most recent room listing.
func (e *Engine) Rooms() []protocol.RoomSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]protocol.RoomSummary(nil), e.rooms...)
}

// RemoteTracks returns the remote tracks of the current attempt, one per stream.
func (e *Engine) RemoteTracks() []Track {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]Track(nil), e.remoteTracks...)
}

// Ready is closed once the first room listing has arrived.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Done is closed when Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Errors delivers failures that ended an attempt or arrived unsolicited.
// Errors are dropped when nobody drains the channel.
func (e *Engine) Errors() <-chan error {
	return e.errCh
}

func (e *Engine) do(ctx context.Context, kind opKind, arg string) result {
	cmd := command{kind: kind, arg: arg, reply: make(chan result, 1)}

	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case <-e.done:
		return result{err: ErrClosed}
	}

	select {
	case r := <-cmd.reply:
		return r
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case <-e.done:
		return result{err: ErrClosed}
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd command) {
	state := e.State()
	switch {
	case state < StateRoomDiscoveryReady:
		cmd.reply <- result{err: newError(cmd.kind.String(), ErrNotReady)}
		return
	case e.pending != nil || state != StateRoomDiscoveryReady:
		cmd.reply <- result{err: newError(cmd.kind.String(), ErrNegotiationMisuse)}
		return
	}

	var err error
	switch cmd.kind {
	case opHost:
		err = e.sig.Send(ctx, protocol.EventRoomHostRequest, protocol.HostRequest{Name: cmd.arg})
	case opJoin:
		e.joinTarget = cmd.arg
		err = e.sig.Send(ctx, protocol.EventRoomJoinRequest, protocol.JoinRequest{RoomID: cmd.arg})
	case opJoinByName:
		e.joinTarget = ""
		err = e.sig.Send(ctx, protocol.EventRoomJoinByName, protocol.JoinByNameRequest{Name: cmd.arg})
	}
	if err != nil {
		cmd.reply <- result{err: newError(cmd.kind.String(), err)}
		return
	}

	e.pending = &cmd
}

func (e *Engine) finish(r result) {
	if e.pending == nil {
		return
	}
	e.pending.reply <- r
	e.pending = nil
}

func (e *Engine) handleSignal(ctx context.Context, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventUserIDAssigned:
		var msg protocol.UserIDAssigned
		if !e.bind(env, &msg) || e.State() != StateIdle {
			return
		}
		e.mu.Lock()
		e.userID = msg.ID
		e.mu.Unlock()
		e.setState(StateAnnounced)

		if err := e.sig.Send(ctx, protocol.EventRoomsListRequest, protocol.RoomsListRequest{}); err != nil {
			e.report(newError("request rooms", err))
		}

	case protocol.EventRoomsList:
		var msg protocol.RoomsList
		if !e.bind(env, &msg) {
			return
		}
		e.mu.Lock()
		e.rooms = msg.Rooms
		e.mu.Unlock()

		if e.State() == StateAnnounced {
			e.setState(StateRoomDiscoveryReady)
			close(e.ready)
		}

	case protocol.EventRoomHosted:
		var msg protocol.RoomHosted
		if e.pending == nil || e.pending.kind != opHost || !e.bind(env, &msg) {
			return
		}
		if err := e.beginAttempt(StateHostNegotiating, msg.RoomID); err != nil {
			e.failAttempt(err)
			return
		}
		e.finish(result{roomID: msg.RoomID})

	case protocol.EventRoomJoinByNameDone:
		var msg protocol.JoinByNameResult
		if e.pending == nil || e.pending.kind != opJoinByName || e.joinTarget != "" || !e.bind(env, &msg) {
			return
		}
		if !msg.Found() {
			e.finish(result{err: newError("join by name", ErrRoomNotFound)})
			return
		}
		e.joinTarget = msg.RoomID
		if err := e.sig.Send(ctx, protocol.EventRoomJoinRequest, protocol.JoinRequest{RoomID: msg.RoomID}); err != nil {
			e.finish(result{err: newError("join by name", err)})
		}

	case protocol.EventRoomJoinResult:
		var msg protocol.JoinResult
		if e.pending == nil || e.pending.kind == opHost || e.joinTarget == "" || !e.bind(env, &msg) {
			return
		}
		if !msg.Success {
			e.finish(result{err: newError("join", ErrRoomNotFound)})
			return
		}
		if err := e.beginAttempt(StateJoinNegotiating, e.joinTarget); err != nil {
			e.failAttempt(err)
			return
		}
		e.armTimer()
		if err := e.acquireMedia(ctx); err != nil {
			e.failAttempt(err)
			return
		}
		e.finish(result{roomID: e.joinTarget})

	case protocol.EventPeerJoined:
		if e.State() == StateHostNegotiating && !e.offerSent {
			e.armTimer()
			e.sendOffer(ctx)
		}

	case protocol.EventSessionOffer:
		var msg protocol.SessionMessage
		if e.State() != StateJoinNegotiating || e.remoteSet || !e.bind(env, &msg) || msg.RoomID != e.RoomID() {
			return
		}
		e.sendAnswer(ctx, msg.SessionDescription)

	case protocol.EventSessionAnswer:
		var msg protocol.SessionMessage
		if e.State() != StateHostNegotiating || !e.offerSent || e.remoteSet || !e.bind(env, &msg) || msg.RoomID != e.RoomID() {
			return
		}
		if err := e.transport.SetRemoteDescription(msg.SessionDescription); err != nil {
			e.failAttempt(wrapError("set remote description", ErrTransportFailed, err))
			return
		}
		e.remoteSet = true
		e.flushQueued()

	case protocol.EventCandidatesExchange:
		var msg protocol.CandidatesExchange
		if e.transport == nil || !e.bind(env, &msg) || msg.RoomID != e.RoomID() {
			return
		}
		if !e.remoteSet {
			e.queued = append(e.queued, msg.Candidates...)
			return
		}
		e.addCandidates(msg.Candidates)

	case protocol.EventError:
		var msg protocol.ErrorPayload
		if !e.bind(env, &msg) {
			return
		}
		e.handleRelayError(msg)

	default:
		e.logger.Debug().Str("event", env.Event).Msg("Ignoring event.")
	}
}

func (e *Engine) handleRelayError(p protocol.ErrorPayload) {
	err := fromWire(p)

	if e.pending != nil && e.pending.answers(p.Event) {
		e.finish(result{err: newError(e.pending.kind.String(), err)})
		return
	}
	if protocol.IsRelayed(p.Event) && e.transport != nil {
		e.failAttempt(newError("relay "+p.Event, err))
		return
	}
	e.report(newError("relay", err))
}

func (e *Engine) handleTransport(ctx context.Context, ev transportEvent) {
	if ev.attempt != e.attempt || e.transport == nil {
		return
	}

	switch {
	case ev.gathered:
		if !e.opts.Trickle {
			e.sendCandidates(ctx, e.batch)
			e.batch = nil
		}

	case ev.candidate != nil:
		if e.opts.Trickle {
			e.sendCandidates(ctx, []protocol.Candidate{*ev.candidate})
		} else {
			e.batch = append(e.batch, *ev.candidate)
		}

	case ev.state != nil:
		e.logger.Debug().Str("connection_state", ev.state.String()).Msg("Transport state changed.")

		switch *ev.state {
		case ConnectionStateConnected:
			if s := e.State(); s == StateHostNegotiating || s == StateJoinNegotiating {
				e.stopTimer()
				e.setState(StateConnected)
			}
		case ConnectionStateFailed, ConnectionStateClosed:
			e.failAttempt(wrapError("transport", ErrTransportFailed, fmt.Errorf("connection %s", ev.state)))
		}

	case ev.track != nil:
		e.mu.Lock()
		defer e.mu.Unlock()

		for _, t := range e.remoteTracks {
			if t.StreamID() == ev.track.StreamID() {
				return
			}
		}
		e.remoteTracks = append(e.remoteTracks, ev.track)
	}
}

// beginAttempt creates a fresh transport and enters state for roomID.
func (e *Engine) beginAttempt(state State, roomID string) error {
	tr, err := e.opts.NewTransport()
	if err != nil {
		return wrapError("create transport", ErrTransportFailed, err)
	}

	e.attempt++
	id := e.attempt

	tr.OnConnectivityCandidate(func(c *protocol.Candidate) {
		e.post(transportEvent{attempt: id, candidate: c, gathered: c == nil})
	})
	tr.OnConnectionStateChange(func(s ConnectionState) {
		e.post(transportEvent{attempt: id, state: &s})
	})
	tr.OnRemoteTrack(func(t Track) {
		e.post(transportEvent{attempt: id, track: t})
	})

	e.transport = tr
	e.offerSent, e.remoteSet = false, false
	e.queued, e.batch = nil, nil

	e.mu.Lock()
	e.roomID = roomID
	e.remoteTracks = nil
	e.attemptErr = nil
	e.mu.Unlock()

	e.setState(state)
	e.logger.Info().Str("room_id", roomID).Int("attempt", id).Msg("Negotiation started.")
	return nil
}

// failAttempt tears down the current attempt and returns to room discovery.
func (e *Engine) failAttempt(err error) {
	e.closeTransport()
	e.finish(result{err: err})

	e.mu.Lock()
	e.roomID = ""
	e.attemptErr = err
	e.mu.Unlock()

	if e.State() != StateClosed {
		e.setState(StateRoomDiscoveryReady)
	}

	e.logger.Warn().Err(err).Msg("Negotiation attempt failed.")
	e.report(err)
}

func (e *Engine) closeTransport() {
	e.stopTimer()
	if e.transport == nil {
		return
	}

	if err := e.transport.Close(); err != nil {
		e.logger.Debug().Err(err).Msg("Transport close error")
	}
	e.transport = nil
	e.offerSent, e.remoteSet = false, false
	e.queued, e.batch = nil, nil
}

func (e *Engine) acquireMedia(ctx context.Context) error {
	tracks, err := e.transport.AcquireLocalMediaTracks(ctx)
	if err != nil {
		return wrapError("acquire media", ErrMediaAcquisitionFailed, err)
	}
	for _, track := range tracks {
		if err := e.transport.AttachTrack(track); err != nil {
			return wrapError("attach track", ErrMediaAcquisitionFailed, err)
		}
	}
	return nil
}

func (e *Engine) sendOffer(ctx context.Context) {
	if err := e.acquireMedia(ctx); err != nil {
		e.failAttempt(err)
		return
	}

	offer, err := e.transport.CreateLocalOffer(ctx)
	if err != nil {
		e.failAttempt(wrapError("create offer", ErrTransportFailed, err))
		return
	}
	if err := e.transport.SetLocalDescription(offer); err != nil {
		e.failAttempt(wrapError("set local description", ErrTransportFailed, err))
		return
	}

	msg := protocol.SessionMessage{RoomID: e.RoomID(), SessionDescription: offer}
	if err := e.sig.Send(ctx, protocol.EventSessionOffer, msg); err != nil {
		e.failAttempt(newError("send offer", err))
		return
	}
	e.offerSent = true
}

func (e *Engine) sendAnswer(ctx context.Context, offer protocol.SessionDescription) {
	if err := e.transport.SetRemoteDescription(offer); err != nil {
		e.failAttempt(wrapError("set remote description", ErrTransportFailed, err))
		return
	}
	e.remoteSet = true
	e.flushQueued()
	if e.transport == nil {
		return
	}

	answer, err := e.transport.CreateLocalAnswer(ctx)
	if err != nil {
		e.failAttempt(wrapError("create answer", ErrTransportFailed, err))
		return
	}
	if err := e.transport.SetLocalDescription(answer); err != nil {
		e.failAttempt(wrapError("set local description", ErrTransportFailed, err))
		return
	}

	msg := protocol.SessionMessage{RoomID: e.RoomID(), SessionDescription: answer}
	if err := e.sig.Send(ctx, protocol.EventSessionAnswer, msg); err != nil {
		e.failAttempt(newError("send answer", err))
	}
}

func (e *Engine) flushQueued() {
	queued := e.queued
	e.queued = nil
	e.addCandidates(queued)
}

// addCandidates applies remote candidates in the order received.
func (e *Engine) addCandidates(candidates []protocol.Candidate) {
	for _, c := range candidates {
		if err := e.transport.AddConnectivityCandidate(c); err != nil {
			e.failAttempt(wrapError("add candidate", ErrTransportFailed, err))
			return
		}
	}
}

func (e *Engine) sendCandidates(ctx context.Context, candidates []protocol.Candidate) {
	if candidates == nil {
		candidates = []protocol.Candidate{}
	}

	msg := protocol.CandidatesExchange{RoomID: e.RoomID(), Candidates: candidates}
	if err := e.sig.Send(ctx, protocol.EventCandidatesExchange, msg); err != nil {
		e.failAttempt(newError("send candidates", err))
	}
}

// post hands a transport callback to the Run goroutine.
func (e *Engine) post(ev transportEvent) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) bind(env protocol.Envelope, dst any) bool {
	if err := env.Bind(dst); err != nil {
		e.logger.Warn().Err(err).Str("event", env.Event).Msg("Dropping malformed event.")
		return false
	}
	return true
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	close(e.changed)
	e.changed = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info().Str("from", prev.String()).Str("to", s.String()).Msg("State changed.")
}

func (e *Engine) report(err error) {
	select {
	case e.errCh <- err:
	default:
		e.logger.Warn().Err(err).Msg("Error channel full, dropping error.")
	}
}

func (e *Engine) timerC() <-chan time.Time {
	if e.timer == nil {
		return nil
	}
	return e.timer.C
}

// armTimer starts the negotiation deadline. A host arms it when a peer joins,
// so waiting for a joiner is unbounded.
func (e *Engine) armTimer() {
	e.stopTimer()
	e.timer = time.NewTimer(e.opts.NegotiationTimeout)
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) shutdown() {
	e.closeTransport()
	e.finish(result{err: ErrClosed})
	e.setState(StateClosed)
	close(e.done)

	e.logger.Info().Msg("Engine stopped.")
}
