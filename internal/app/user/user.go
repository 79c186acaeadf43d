/*
Package user contains the identity record the relay keeps for every announced connection.

A User lives exactly as long as the WebSocket connection that announced it and
is owned by the registry, keyed by the connection handle.
*/
package user

// User represents an announced participant.
// Fields use JSON tags for serialization in log fields and HTTP snapshots.
type User struct {

	// ID is the opaque identifier assigned by the relay on announce.
	ID string `json:"id" msgpack:"id"`

	// Nickname is the display name sent by the client. Nicknames are not unique.
	Nickname string `json:"nickname" msgpack:"nickname"`

	// HostedRoomID is the room this user created, empty when the user hosts nothing.
	HostedRoomID string `json:"hostedRoomId,omitempty" msgpack:"hostedRoomId,omitempty"`
}

// IsHost reports whether the user currently hosts a room.
func (u User) IsHost() bool {
	return u.HostedRoomID != ""
}
