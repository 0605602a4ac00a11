package signal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes relay messages for one websocket connection
type Codec interface {
	Name() string
	// FrameType is the websocket message type the codec writes
	FrameType() int
	Encode(msg Message) ([]byte, error)
	Decode(data []byte, msg *Message) error
}

// Built-in codecs
var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecByName resolves a ?codec= query value. Empty selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json message: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte, msg *Message) error {
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to decode json message: %w", err)
	}
	return nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return "msgpack" }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(msg Message) ([]byte, error) {
	data, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode msgpack message: %w", err)
	}
	return data, nil
}

func (msgpackCodec) Decode(data []byte, msg *Message) error {
	if err := msgpack.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to decode msgpack message: %w", err)
	}
	return nil
}
