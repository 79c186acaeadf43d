package negotiation

import (
	"errors"
	"fmt"

	"peerlink/internal/pkg/errs"
	"peerlink/internal/protocol"
)

var (
	// ErrNotReady is returned by room operations before the room list has been received.
	ErrNotReady = errs.NewClientError(errs.ErrNotReady)

	// ErrNegotiationMisuse is returned when a negotiation is already pending, active or connected.
	ErrNegotiationMisuse = errs.NewClientError(errs.ErrNegotiationMisuse)

	// ErrMediaAcquisitionFailed wraps failures to acquire or attach local media.
	ErrMediaAcquisitionFailed = errs.NewClientError(errs.ErrMediaAcquisitionFailed)

	// ErrNegotiationTimeout is reported when an attempt does not reach Connected in time.
	ErrNegotiationTimeout = errs.NewClientError(errs.ErrNegotiationTimeout)

	// ErrTransportFailed wraps transport errors and failed or closed transport states.
	ErrTransportFailed = errs.NewClientError(errs.ErrTransportFailed)

	// ErrRoomNotFound is returned when a join target does not exist.
	ErrRoomNotFound = errs.NewClientError(errs.ErrRoomNotFound)

	// ErrUserNotRegistered is returned when the relay has not seen our announce.
	ErrUserNotRegistered = errs.NewClientError(errs.ErrUserNotRegistered)

	// ErrClosed is returned once the engine has shut down.
	ErrClosed = errors.New("negotiation engine closed")

	// ErrSignalingClosed is reported when the relay connection drops.
	ErrSignalingClosed = errors.New("signaling channel closed")
)

// Error records the engine operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// wrapError attaches cause to a sentinel so both match errors.Is.
func wrapError(op string, sentinel, cause error) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

// fromWire maps an error event to a sentinel where one exists.
func fromWire(p protocol.ErrorPayload) error {
	switch p.Code {
	case errs.ErrRoomNotFound:
		return ErrRoomNotFound
	case errs.ErrUserNotRegistered:
		return ErrUserNotRegistered
	}
	return errs.FromWire(p.Code, p.Message)
}
