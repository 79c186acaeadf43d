package registry

import (
	"fmt"
	"sync"
	"testing"

	"peerlink/internal/pkg/errs"
	"peerlink/internal/protocol"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()

	u := r.RegisterUser("conn-a", "alice")
	if u.ID == "" || u.Nickname != "alice" || u.IsHost() {
		t.Fatalf("RegisterUser returned %+v", u)
	}

	got, ok := r.LookupUser("conn-a")
	if !ok || got != u {
		t.Fatalf("LookupUser=%+v,%v, want %+v,true", got, ok, u)
	}

	if _, ok := r.LookupUser("conn-b"); ok {
		t.Fatalf("LookupUser(conn-b) found an unannounced connection")
	}
}

func TestCreateRoom_RequiresRegisteredUser(t *testing.T) {
	r := New()

	_, err := r.CreateRoom("ghost", "party")
	if !errs.Is(err, errs.ErrUserNotRegistered) {
		t.Fatalf("err=%v, want ErrUserNotRegistered", err)
	}
	if n := len(r.ListRooms()); n != 0 {
		t.Fatalf("rooms=%d after failed create", n)
	}
}

func TestCreateRoom_SetsHostedRoom(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")

	room, err := r.CreateRoom("conn-a", "party")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	host, _ := r.LookupUser("conn-a")
	if host.HostedRoomID != room.ID {
		t.Fatalf("HostedRoomID=%q, want %q", host.HostedRoomID, room.ID)
	}
	if room.Host.Nickname != "alice" || len(room.Members) != 0 {
		t.Fatalf("room=%+v", room)
	}

	want := []protocol.RoomSummary{{ID: room.ID, Name: "party", HostNickname: "alice"}}
	assertRooms(t, r.ListRooms(), want)
}

func TestJoinRoom(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	bob := r.RegisterUser("conn-b", "bob")
	room, _ := r.CreateRoom("conn-a", "party")

	if err := r.JoinRoom(room.ID, "conn-b"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	got, _ := r.GetRoom(room.ID)
	if len(got.Members) != 1 || got.Members[0] != bob {
		t.Fatalf("members=%+v, want [bob]", got.Members)
	}

	// host join is a no-op
	if err := r.JoinRoom(room.ID, "conn-a"); err != nil {
		t.Fatalf("host JoinRoom: %v", err)
	}
	// a second join by bob is recorded twice
	if err := r.JoinRoom(room.ID, "conn-b"); err != nil {
		t.Fatalf("repeat JoinRoom: %v", err)
	}

	got, _ = r.GetRoom(room.ID)
	if len(got.Members) != 2 {
		t.Fatalf("members=%d, want 2", len(got.Members))
	}
	for _, m := range got.Members {
		if m.ID != bob.ID {
			t.Fatalf("member %+v is not bob; host must never be a member", m)
		}
	}
}

func TestHostedBy_SurvivesReannounce(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	room, _ := r.CreateRoom("conn-a", "party")

	again := r.RegisterUser("conn-a", "alice2")
	if again.ID == room.Host.ID {
		t.Fatalf("re-announce kept user id %q", again.ID)
	}

	got, _ := r.GetRoom(room.ID)
	if !got.HostedBy("conn-a") || got.HostedBy("conn-b") {
		t.Fatalf("HostedBy(conn-a, conn-b) = %v, %v; want true, false", got.HostedBy("conn-a"), got.HostedBy("conn-b"))
	}

	if err := r.JoinRoom(room.ID, "conn-a"); err != nil {
		t.Fatalf("host JoinRoom after re-announce: %v", err)
	}
	if got, _ := r.GetRoom(room.ID); len(got.Members) != 0 {
		t.Fatalf("members=%+v, want host kept out after re-announce", got.Members)
	}
}

func TestJoinRoom_NotFoundDoesNotMutate(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	r.RegisterUser("conn-b", "bob")
	r.CreateRoom("conn-a", "party")

	calls := 0
	r.OnRoomsChanged(func([]protocol.RoomSummary) { calls++ })

	before := r.ListRooms()
	err := r.JoinRoom("000000000000-000000000000-000000000000-000000000000", "conn-b")
	if !errs.Is(err, errs.ErrRoomNotFound) {
		t.Fatalf("err=%v, want ErrRoomNotFound", err)
	}

	assertRooms(t, r.ListRooms(), before)
	if calls != 0 {
		t.Fatalf("hook fired %d times for a failed join", calls)
	}
}

func TestRemoveUser_HostRemovesRoom(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	r.CreateRoom("conn-a", "empty")

	r.RemoveUser("conn-a")

	if n := len(r.ListRooms()); n != 0 {
		t.Fatalf("rooms=%d after host left, want 0", n)
	}
	if _, ok := r.LookupUser("conn-a"); ok {
		t.Fatalf("host still registered")
	}
}

func TestRemoveUser_MemberKeepsRoom(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	r.RegisterUser("conn-b", "bob")
	room, _ := r.CreateRoom("conn-a", "party")
	r.JoinRoom(room.ID, "conn-b")

	r.RemoveUser("conn-b")

	got, ok := r.GetRoom(room.ID)
	if !ok {
		t.Fatalf("room removed after member left")
	}
	// members are not pruned on member disconnect
	if len(got.Members) != 1 {
		t.Fatalf("members=%d, want the stale entry kept", len(got.Members))
	}
}

func TestRemoveUser_RemovesEveryHostedRoom(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	r.RegisterUser("conn-c", "carol")
	r.CreateRoom("conn-a", "one")
	keep, _ := r.CreateRoom("conn-c", "keep")
	r.CreateRoom("conn-a", "two")

	r.RemoveUser("conn-a")

	assertRooms(t, r.ListRooms(), []protocol.RoomSummary{keep.Summary()})
}

func TestFindRoomByName_StableWithDuplicates(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	r.RegisterUser("conn-b", "bob")
	first, _ := r.CreateRoom("conn-a", "X")
	r.CreateRoom("conn-b", "X")

	if n := r.CountRoomsByName("X"); n != 2 {
		t.Fatalf("CountRoomsByName=%d, want 2", n)
	}

	for i := 0; i < 10; i++ {
		got, ok := r.FindRoomByName("X")
		if !ok || got.ID != first.ID {
			t.Fatalf("FindRoomByName=%+v,%v, want %s", got, ok, first.ID)
		}
	}

	if _, ok := r.FindRoomByName("Y"); ok {
		t.Fatalf("FindRoomByName(Y) found a room")
	}
}

func TestListRooms_IsSnapshot(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	r.CreateRoom("conn-a", "party")

	snap := r.ListRooms()
	snap[0].Name = "mutated"

	if got := r.ListRooms()[0].Name; got != "party" {
		t.Fatalf("listing changed through snapshot: %q", got)
	}

	room, _ := r.GetRoom(snap[0].ID)
	room.Members = append(room.Members, room.Host)
	again, _ := r.GetRoom(snap[0].ID)
	if len(again.Members) != 0 {
		t.Fatalf("members changed through GetRoom copy")
	}
}

func TestListRooms_EmptyIsNonNil(t *testing.T) {
	if rooms := New().ListRooms(); rooms == nil {
		t.Fatalf("ListRooms returned nil; wire encoding needs an empty list")
	}
}

func TestOnRoomsChanged(t *testing.T) {
	r := New()

	var seen [][]protocol.RoomSummary
	r.OnRoomsChanged(func(rooms []protocol.RoomSummary) { seen = append(seen, rooms) })

	r.RegisterUser("conn-a", "alice")
	r.RegisterUser("conn-b", "bob")
	if len(seen) != 0 {
		t.Fatalf("hook fired on register")
	}

	room, _ := r.CreateRoom("conn-a", "party")
	r.JoinRoom(room.ID, "conn-b")
	r.JoinRoom(room.ID, "conn-a")
	r.RemoveUser("conn-b")
	r.RemoveRoom(room.ID)
	r.RemoveRoom(room.ID)

	wantLens := []int{1, 1, 1, 0}
	if len(seen) != len(wantLens) {
		t.Fatalf("hook fired %d times, want %d", len(seen), len(wantLens))
	}
	for i, n := range wantLens {
		if len(seen[i]) != n {
			t.Fatalf("call %d saw %d rooms, want %d", i, len(seen[i]), n)
		}
	}
	if seen[1][0].MemberCount != 1 {
		t.Fatalf("join notification saw memberCount=%d", seen[1][0].MemberCount)
	}
}

func TestGroups(t *testing.T) {
	r := New()

	r.JoinGroup("room-1", "conn-a")
	r.JoinGroup("room-1", "conn-b")
	r.JoinGroup("room-1", "conn-a")
	r.JoinGroup("room-2", "conn-b")

	if got := r.GroupMembers("room-1"); len(got) != 2 || got[0] != "conn-a" || got[1] != "conn-b" {
		t.Fatalf("GroupMembers(room-1)=%v", got)
	}
	if !r.InGroup("room-2", "conn-b") || r.InGroup("room-2", "conn-a") {
		t.Fatalf("InGroup mismatch")
	}

	r.LeaveAllGroups("conn-b")

	if r.InGroup("room-1", "conn-b") || r.InGroup("room-2", "conn-b") {
		t.Fatalf("conn-b still grouped after LeaveAllGroups")
	}
	if got := r.Stats().Groups; got != 1 {
		t.Fatalf("groups=%d, want empty group dropped", got)
	}
}

func TestRemoveRoom_DropsGroup(t *testing.T) {
	r := New()
	r.RegisterUser("conn-a", "alice")
	room, _ := r.CreateRoom("conn-a", "party")
	r.JoinGroup(room.ID, "conn-a")

	r.RemoveRoom(room.ID)

	if r.InGroup(room.ID, "conn-a") {
		t.Fatalf("group survived room removal")
	}
	if u, _ := r.LookupUser("conn-a"); u.IsHost() {
		t.Fatalf("host still points at removed room")
	}
}

func TestConcurrentJoins_NoLostUpdates(t *testing.T) {
	r := New()
	r.RegisterUser("host", "alice")
	room, _ := r.CreateRoom("host", "party")

	const joiners = 64
	for i := 0; i < joiners; i++ {
		r.RegisterUser(fmt.Sprintf("conn-%d", i), fmt.Sprintf("peer-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.JoinRoom(room.ID, fmt.Sprintf("conn-%d", i)); err != nil {
				t.Errorf("JoinRoom: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := r.GetRoom(room.ID)
	if len(got.Members) != joiners {
		t.Fatalf("members=%d, want %d", len(got.Members), joiners)
	}
}

func TestConcurrentMixedMutations(t *testing.T) {
	r := New()

	var last []protocol.RoomSummary
	r.OnRoomsChanged(func(rooms []protocol.RoomSummary) { last = rooms })

	const hosts = 32
	var wg sync.WaitGroup
	for i := 0; i < hosts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle := fmt.Sprintf("conn-%d", i)
			r.RegisterUser(handle, "host")
			if _, err := r.CreateRoom(handle, fmt.Sprintf("room-%d", i)); err != nil {
				t.Errorf("CreateRoom: %v", err)
			}
			if i%2 == 0 {
				r.RemoveUser(handle)
			}
		}(i)
	}
	wg.Wait()

	rooms := r.ListRooms()
	if len(rooms) != hosts/2 {
		t.Fatalf("rooms=%d, want %d", len(rooms), hosts/2)
	}
	assertRooms(t, last, rooms)
}

func assertRooms(t *testing.T, got, want []protocol.RoomSummary) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("rooms=%+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rooms[%d]=%+v, want %+v", i, got[i], want[i])
		}
	}
}
