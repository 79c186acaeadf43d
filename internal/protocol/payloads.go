package protocol

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxNicknameRunes bounds the length of an announced nickname.
	MaxNicknameRunes = 64

	// MaxRoomNameRunes bounds the length of a room name.
	MaxRoomNameRunes = 128

	// MaxCandidatesPerBatch bounds a single candidates-exchange batch.
	MaxCandidatesPerBatch = 256
)

type Announce struct {
	Nickname string `json:"nickname" msgpack:"nickname"`
}

func (a Announce) Validate() error {
	return checkText("nickname", a.Nickname, MaxNicknameRunes)
}

type UserIDAssigned struct {
	ID string `json:"id" msgpack:"id"`
}

type RoomsListRequest struct{}

// RoomSummary is the public, immutable view of a room.
type RoomSummary struct {
	ID           string `json:"id" msgpack:"id"`
	Name         string `json:"name" msgpack:"name"`
	HostNickname string `json:"hostNickname" msgpack:"hostNickname"`
	MemberCount  int    `json:"memberCount" msgpack:"memberCount"`
}

type RoomsList struct {
	Rooms []RoomSummary `json:"rooms" msgpack:"rooms"`
}

type HostRequest struct {
	Name string `json:"name" msgpack:"name"`
}

func (h HostRequest) Validate() error {
	return checkText("name", h.Name, MaxRoomNameRunes)
}

type RoomHosted struct {
	RoomID string `json:"roomId" msgpack:"roomId"`
}

type JoinRequest struct {
	RoomID string `json:"roomId" msgpack:"roomId"`
}

func (j JoinRequest) Validate() error {
	if j.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	return nil
}

type JoinResult struct {
	Success bool `json:"success" msgpack:"success"`
}

type JoinByNameRequest struct {
	Name string `json:"name" msgpack:"name"`
}

func (j JoinByNameRequest) Validate() error {
	return checkText("name", j.Name, MaxRoomNameRunes)
}

// JoinByNameResult carries the resolved room id, or NoSuchRoom.
type JoinByNameResult struct {
	RoomID string `json:"roomId" msgpack:"roomId"`
}

// Found reports whether the resolution matched a room.
func (j JoinByNameResult) Found() bool {
	return j.RoomID != "" && j.RoomID != NoSuchRoom
}

type PeerJoined struct{}

// SessionDescription mirrors the browser's RTCSessionDescriptionInit.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// SessionMessage is the payload of session-offer and session-answer.
type SessionMessage struct {
	RoomID             string             `json:"roomId" msgpack:"roomId"`
	SessionDescription SessionDescription `json:"sessionDescription" msgpack:"sessionDescription"`
}

// ValidateFor checks the payload against the event it arrived under.
func (s SessionMessage) ValidateFor(event string) error {
	if s.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}

	want := ""
	switch event {
	case EventSessionOffer:
		want = "offer"
	case EventSessionAnswer:
		want = "answer"
	default:
		return fmt.Errorf("event %q does not carry a session description", event)
	}

	if s.SessionDescription.Type != want {
		return fmt.Errorf("%s has sessionDescription.type=%q", event, s.SessionDescription.Type)
	}
	if s.SessionDescription.SDP == "" {
		return fmt.Errorf("%s missing sdp", event)
	}
	return nil
}

// Candidate mirrors the browser's RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// CandidatesExchange is one batch of connectivity candidates for a room.
type CandidatesExchange struct {
	RoomID     string      `json:"roomId" msgpack:"roomId"`
	Candidates []Candidate `json:"candidates" msgpack:"candidates"`
}

func (c CandidatesExchange) Validate() error {
	if c.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	if len(c.Candidates) > MaxCandidatesPerBatch {
		return fmt.Errorf("batch of %d candidates exceeds %d", len(c.Candidates), MaxCandidatesPerBatch)
	}
	for i, cand := range c.Candidates {
		if cand.Candidate == "" {
			return fmt.Errorf("candidates[%d] is empty", i)
		}
	}
	return nil
}

// ErrorPayload reports a rejected request. Event names the request that failed.
type ErrorPayload struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Event   string `json:"event,omitempty" msgpack:"event,omitempty"`
}

func checkText(field, value string, maxRunes int) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", field)
	}
	if n := utf8.RuneCountInString(value); n > maxRunes {
		return fmt.Errorf("%s has %d characters, max %d", field, n, maxRunes)
	}
	return nil
}
