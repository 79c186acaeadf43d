/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific signaling or negotiation failures both
internally and on the wire, where the relay reports them in error events.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that a message payload failed validation.
	ErrInvalidParams = 1001

	// ErrInvalidMessageFormat indicates that a frame could not be decoded into an event envelope.
	ErrInvalidMessageFormat = 1003

	// ErrRequestEntityTooLarge indicates that a frame exceeded the configured size limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnsupportedEvent indicates that the client sent an event name the relay does not handle.
	ErrUnsupportedEvent = 1008
)

// 2xxx: Room Errors
const (
	// ErrRoomNotFound indicates that the room targeted by a join does not exist.
	ErrRoomNotFound = 2103

	// ErrAmbiguousRoomName indicates that more than one room carries the requested name.
	ErrAmbiguousRoomName = 2105

	// ErrNotInRoom indicates that a connection relayed data for a room it is not grouped with.
	ErrNotInRoom = 2106
)

// 3xxx: User and Session Errors
const (
	// ErrUserNotRegistered indicates that a message arrived from a connection that never announced itself.
	ErrUserNotRegistered = 3005

	// ErrOriginNotAllowed indicates that the WebSocket upgrade came from a disallowed origin.
	ErrOriginNotAllowed = 3006
)

// 4xxx: Negotiation Errors (client side)
const (
	// ErrNegotiationMisuse indicates a second negotiation was started on one engine instance.
	ErrNegotiationMisuse = 4001

	// ErrMediaAcquisitionFailed indicates the local media capability was denied or unavailable.
	ErrMediaAcquisitionFailed = 4002

	// ErrNotReady indicates that room operations were requested before room discovery completed.
	ErrNotReady = 4003

	// ErrNegotiationTimeout indicates that the peer connection did not reach connected in time.
	ErrNegotiationTimeout = 4004

	// ErrTransportFailed indicates the transport capability failed or reported a failed state.
	ErrTransportFailed = 4005
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
