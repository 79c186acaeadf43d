// Package protocol defines the signaling message catalogue shared by the relay
// and its clients: event names, payload types, validation and the wire codecs.
//
// Every frame is an envelope {"event": name, "data": payload}. The JSON codec
// uses text frames; the msgpack codec uses binary frames with the same field
// names.
package protocol
