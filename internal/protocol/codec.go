package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// ErrEmptyEvent is returned when a frame decodes but carries no event name.
var ErrEmptyEvent = errors.New("envelope has no event name")

// Codec encodes and decodes signaling envelopes for one connection.
type Codec interface {
	// Name is the value clients pass in the codec query parameter.
	Name() string

	// FrameType is the WebSocket message type frames are written with.
	FrameType() int

	// Encode builds a frame for event carrying data.
	Encode(event string, data any) ([]byte, error)

	// Decode parses a frame into an Envelope whose payload is decoded lazily.
	Decode(frame []byte) (Envelope, error)
}

// Envelope is a decoded frame. Bind decodes the payload into a typed struct.
type Envelope struct {
	Event string

	raw  []byte
	bind func(raw []byte, dst any) error
}

// Bind decodes the envelope payload into dst. A missing payload leaves dst untouched.
func (e Envelope) Bind(dst any) error {
	if len(e.raw) == 0 || e.bind == nil {
		return nil
	}
	return e.bind(e.raw, dst)
}

// NewEnvelope builds an Envelope for tests and in-process channels.
func NewEnvelope(codec Codec, event string, data any) (Envelope, error) {
	frame, err := codec.Encode(event, data)
	if err != nil {
		return Envelope{}, err
	}
	return codec.Decode(frame)
}

// LookupCodec returns the codec registered under name. Empty selects JSON.
func LookupCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSON, nil
	case CodecMsgpack:
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

var (
	// JSON is the default text codec.
	JSON Codec = jsonCodec{}

	// Msgpack is the binary codec.
	Msgpack Codec = msgpackCodec{}
)

type jsonCodec struct{}

func (jsonCodec) Name() string   { return CodecJSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(event string, data any) ([]byte, error) {
	if data == nil {
		data = struct{}{}
	}
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{event, data})
}

func (jsonCodec) Decode(frame []byte) (Envelope, error) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, ErrEmptyEvent
	}

	raw := []byte(env.Data)
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = nil
	}

	return Envelope{Event: env.Event, raw: raw, bind: json.Unmarshal}, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return CodecMsgpack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(event string, data any) ([]byte, error) {
	if data == nil {
		data = struct{}{}
	}
	return msgpack.Marshal(struct {
		Event string `msgpack:"event"`
		Data  any    `msgpack:"data"`
	}{event, data})
}

func (msgpackCodec) Decode(frame []byte) (Envelope, error) {
	var env struct {
		Event string             `msgpack:"event"`
		Data  msgpack.RawMessage `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, ErrEmptyEvent
	}

	return Envelope{Event: env.Event, raw: []byte(env.Data), bind: msgpack.Unmarshal}, nil
}
