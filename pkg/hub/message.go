// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/go-focus/pkg/focus"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (e.g., JPEG frames)
	BinaryMessage
)

// Message represents a message to be broadcast to clients.
// An empty Session reaches every client.
type Message struct {
	Type    MessageType
	Session string
	Data    []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(session string, data []byte) Message {
	return Message{Type: JSONMessage, Session: session, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(session string, data []byte) Message {
	return Message{Type: BinaryMessage, Session: session, Data: data}
}

// ResultEnvelope is the JSON pushed to observers for each analyzed frame.
type ResultEnvelope struct {
	Type    string       `json:"type"`
	Session string       `json:"session"`
	Result  focus.Result `json:"result"`
}

// EncodeResult wraps res for the result stream.
func EncodeResult(session string, res focus.Result) ([]byte, error) {
	return json.Marshal(ResultEnvelope{Type: "result", Session: session, Result: res})
}
