/*
Package registry holds the process-wide room and user state of the signaling relay.

This file defines the Registry struct, the single source of truth for which
connection announced which user, which rooms exist, and which connections are
grouped under each room for scoped forwarding. All mutations are serialized by
one mutex; every read returns a copy.
*/
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"peerlink/internal/app/user"
	"peerlink/internal/pkg/errs"
	"peerlink/internal/pkg/logx"
	"peerlink/internal/pkg/randx"
	"peerlink/internal/protocol"
)

// RoomsChangedFunc receives the listing after a mutation that changed it.
// It runs while the registry lock is held and must not call back into the Registry.
type RoomsChangedFunc func(rooms []protocol.RoomSummary)

// Room is a named rendezvous point with one host and any number of members.
type Room struct {
	ID      string
	Name    string
	Host    user.User
	Members []user.User

	// hostHandle is the connection that created the room.
	hostHandle string
}

// Summary returns the public view of the room.
func (r Room) Summary() protocol.RoomSummary {
	return protocol.RoomSummary{
		ID:           r.ID,
		Name:         r.Name,
		HostNickname: r.Host.Nickname,
		MemberCount:  len(r.Members),
	}
}

// HostedBy reports whether the connection on handle created the room. The
// host's user record may have been replaced by a later announce.
func (r Room) HostedBy(handle string) bool {
	return r.hostHandle == handle
}

func (r Room) clone() Room {
	r.Members = append([]user.User(nil), r.Members...)
	return r
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Users  int `json:"users"`
	Rooms  int `json:"rooms"`
	Groups int `json:"groups"`
}

// Registry maps connection handles to users and room ids to rooms.
type Registry struct {
	// users stores announced users keyed by connection handle.
	users map[string]user.User

	// rooms stores room records keyed by room id.
	rooms map[string]*Room

	// order keeps room ids in creation order for listing and name resolution.
	order []string

	// groups maps a room id to the connection handles that receive its relayed traffic.
	groups map[string][]string

	// onRoomsChanged is notified after every listing change, under mu.
	onRoomsChanged RoomsChangedFunc

	// newID allocates user and room ids.
	newID func() string

	mu sync.RWMutex

	logger zerolog.Logger
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		users:  make(map[string]user.User),
		rooms:  make(map[string]*Room),
		groups: make(map[string][]string),
		newID:  randx.GenerateID,
		logger: logx.Component("Registry"),
	}
}

// OnRoomsChanged registers fn as the listing-change hook, replacing any previous one.
func (r *Registry) OnRoomsChanged(fn RoomsChangedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onRoomsChanged = fn
}

// RegisterUser allocates a user id and stores the user under handle.
// Announcing twice on one connection replaces the earlier user record.
func (r *Registry) RegisterUser(handle, nickname string) user.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := user.User{ID: r.newID(), Nickname: nickname}
	if prev, ok := r.users[handle]; ok {
		r.logger.Info().Str("conn_id", handle).Str("previous_user_id", prev.ID).Msg("Connection announced again. Replacing user.")
		u.HostedRoomID = prev.HostedRoomID
	}
	r.users[handle] = u

	r.logger.Debug().Str("conn_id", handle).Str("user_id", u.ID).Msg("User registered.")
	return u
}

// LookupUser returns the user announced on handle.
func (r *Registry) LookupUser(handle string) (user.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[handle]
	return u, ok
}

// CreateRoom creates a room hosted by the user on hostHandle and records it as
// that user's hosted room. Duplicate names are allowed.
func (r *Registry) CreateRoom(hostHandle, name string) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	host, ok := r.users[hostHandle]
	if !ok {
		return Room{}, errs.NewError(errs.ErrUserNotRegistered)
	}

	room := &Room{ID: r.newID(), Name: name, hostHandle: hostHandle}

	host.HostedRoomID = room.ID
	r.users[hostHandle] = host
	room.Host = host

	r.rooms[room.ID] = room
	r.order = append(r.order, room.ID)

	r.logger.Info().Str("room_id", room.ID).Str("host_id", host.ID).Msg("Room created.")
	r.notifyLocked()

	return room.clone(), nil
}

// JoinRoom appends the user on handle to the room's members.
// Joining a room you host is a successful no-op; repeated joins by a member
// append repeated entries.
func (r *Registry) JoinRoom(roomID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[handle]
	if !ok {
		return errs.NewError(errs.ErrUserNotRegistered)
	}

	room, ok := r.rooms[roomID]
	if !ok {
		return errs.NewError(errs.ErrRoomNotFound)
	}

	if room.HostedBy(handle) {
		r.logger.Debug().Str("room_id", roomID).Msg("Host joined own room. Nothing to do.")
		return nil
	}

	room.Members = append(room.Members, u)

	r.logger.Info().Str("room_id", roomID).Str("user_id", u.ID).Int("members", len(room.Members)).Msg("User joined room.")
	r.notifyLocked()

	return nil
}

// GetRoom returns a copy of the room with id roomID.
func (r *Registry) GetRoom(roomID string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return room.clone(), true
}

// FindRoomByName returns the earliest created room named name. The result is
// stable for as long as that room exists.
func (r *Registry) FindRoomByName(name string) (protocol.RoomSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if room := r.rooms[id]; room.Name == name {
			return room.Summary(), true
		}
	}
	return protocol.RoomSummary{}, false
}

// CountRoomsByName returns how many rooms are named name.
func (r *Registry) CountRoomsByName(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, room := range r.rooms {
		if room.Name == name {
			n++
		}
	}
	return n
}

// RemoveRoom deletes the room and its group. Absent rooms are ignored.
func (r *Registry) RemoveRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removeRoomLocked(roomID) {
		r.notifyLocked()
	}
}

// RemoveUser deletes the user on handle and every room that user hosts.
// Rooms the user merely joined keep their member entry. The listing hook
// always fires, even when handle was never announced.
func (r *Registry) RemoveUser(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[handle]
	delete(r.users, handle)

	removed := 0
	for _, id := range append([]string(nil), r.order...) {
		if r.rooms[id].hostHandle == handle && r.removeRoomLocked(id) {
			removed++
		}
	}

	if ok {
		r.logger.Info().Str("conn_id", handle).Str("user_id", u.ID).Int("rooms_removed", removed).Msg("User removed.")
	}
	r.notifyLocked()
}

// ListRooms returns a snapshot of all rooms in creation order.
func (r *Registry) ListRooms() []protocol.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listLocked()
}

// JoinGroup associates handle with the room's relay group. Repeated calls are no-ops.
func (r *Registry) JoinGroup(roomID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.groups[roomID] {
		if h == handle {
			return
		}
	}
	r.groups[roomID] = append(r.groups[roomID], handle)
}

// LeaveAllGroups removes handle from every room group.
func (r *Registry) LeaveAllGroups(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, handles := range r.groups {
		kept := handles[:0]
		for _, h := range handles {
			if h != handle {
				kept = append(kept, h)
			}
		}

		if len(kept) == 0 {
			delete(r.groups, roomID)
		} else {
			r.groups[roomID] = kept
		}
	}
}

// GroupMembers returns the handles grouped under roomID in the order they joined.
func (r *Registry) GroupMembers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.groups[roomID]...)
}

// InGroup reports whether handle is grouped under roomID.
func (r *Registry) InGroup(roomID, handle string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.groups[roomID] {
		if h == handle {
			return true
		}
	}
	return false
}

// Stats returns current counts for health reporting.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{Users: len(r.users), Rooms: len(r.rooms), Groups: len(r.groups)}
}

func (r *Registry) removeRoomLocked(roomID string) bool {
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}

	delete(r.rooms, roomID)
	delete(r.groups, roomID)
	for i, id := range r.order {
		if id == roomID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if host, ok := r.users[room.hostHandle]; ok && host.HostedRoomID == roomID {
		host.HostedRoomID = ""
		r.users[room.hostHandle] = host
	}

	r.logger.Info().Str("room_id", roomID).Msg("Room removed.")
	return true
}

func (r *Registry) listLocked() []protocol.RoomSummary {
	rooms := make([]protocol.RoomSummary, 0, len(r.order))
	for _, id := range r.order {
		rooms = append(rooms, r.rooms[id].Summary())
	}
	return rooms
}

func (r *Registry) notifyLocked() {
	if r.onRoomsChanged == nil {
		return
	}
	r.onRoomsChanged(r.listLocked())
}
