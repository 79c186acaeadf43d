package protocol

// Client to server events.
const (
	EventUserAnnounce       = "user-announce"
	EventRoomsListRequest   = "rooms-list-request"
	EventRoomHostRequest    = "room-host-request"
	EventRoomJoinRequest    = "room-join-request"
	EventRoomJoinByName     = "room-join-by-name-request"
	EventSessionOffer       = "session-offer"
	EventSessionAnswer      = "session-answer"
	EventCandidatesExchange = "candidates-exchange"
)

// Server to client events. Offer, answer and candidate events are relayed
// under the same names they were sent with.
const (
	EventUserIDAssigned     = "user-id-assigned"
	EventRoomsList          = "rooms-list"
	EventRoomHosted         = "room-hosted"
	EventRoomJoinResult     = "room-join-result"
	EventRoomJoinByNameDone = "room-join-by-name-result"
	EventPeerJoined         = "peer-joined"
	EventError              = "error"
)

// NoSuchRoom is the room id returned by by-name resolution when no room matches.
const NoSuchRoom = "NO_SUCH_ROOM"

// IsRelayed reports whether event is forwarded verbatim between room members.
func IsRelayed(event string) bool {
	switch event {
	case EventSessionOffer, EventSessionAnswer, EventCandidatesExchange:
		return true
	}
	return false
}
