/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and signaling error events.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid message parameters."},
	ErrInvalidMessageFormat:  {Code: ErrInvalidMessageFormat, Message: "Malformed message."},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Message size is too large."},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnsupportedEvent:      {Code: ErrUnsupportedEvent, Message: "Unsupported event %q."},

	// 2xxx: Room Errors
	ErrRoomNotFound:      {Code: ErrRoomNotFound, Message: "Room not found.", Status: http.StatusNotFound},
	ErrAmbiguousRoomName: {Code: ErrAmbiguousRoomName, Message: "Room name %q matches %d rooms."},
	ErrNotInRoom:         {Code: ErrNotInRoom, Message: "You are not in this room."},

	// 3xxx: User and Session Errors
	ErrUserNotRegistered: {Code: ErrUserNotRegistered, Message: "Announce a nickname first."},
	ErrOriginNotAllowed:  {Code: ErrOriginNotAllowed, Message: "Origin not allowed.", Status: http.StatusForbidden},

	// 4xxx: Negotiation Errors
	ErrNegotiationMisuse:      {Code: ErrNegotiationMisuse, Message: "A negotiation is already in progress on this engine."},
	ErrMediaAcquisitionFailed: {Code: ErrMediaAcquisitionFailed, Message: "Local media is unavailable."},
	ErrNotReady:               {Code: ErrNotReady, Message: "Room discovery has not completed."},
	ErrNegotiationTimeout:     {Code: ErrNegotiationTimeout, Message: "Peer connection was not established in time."},
	ErrTransportFailed:        {Code: ErrTransportFailed, Message: "Peer connection failed."},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
