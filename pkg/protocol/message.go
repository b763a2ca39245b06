// Package protocol defines the JSON text frames exchanged on the voice
// WebSocket. Audio travels as raw binary frames and is not wrapped.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the type of a text frame.
type MessageType string

const (
	// Client → Server controls
	TypeEndSpeech MessageType = "end_speech" // Segment boundary
	TypeStop      MessageType = "stop"       // Client asks the server to close

	// Server → Client events
	TypeReady      MessageType = "ready"      // Session opened
	TypeTranscript MessageType = "transcript" // Recognized user text
	TypeLLM        MessageType = "llm"        // Assistant reply text
	TypeError      MessageType = "error"      // Stage or protocol failure

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// ErrUnknownType is returned by ParseControl for types a client may not send.
var ErrUnknownType = errors.New("protocol: unknown message type")

// Message is a flat text frame. Only the fields relevant to Type are set.
type Message struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text,omitempty"`
	Error   string      `json:"error,omitempty"`
	Session string      `json:"session,omitempty"`
}

// Bytes returns the JSON encoding of the message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses any text frame.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("protocol: message has no type")
	}
	return &msg, nil
}

// ParseControl parses a client → server text frame and rejects anything
// that is not a control the server understands.
func ParseControl(data []byte) (*Message, error) {
	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}
	if !msg.Type.IsControl() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return msg, nil
}

// IsControl reports whether t may be sent by a client.
func (t MessageType) IsControl() bool {
	switch t {
	case TypeEndSpeech, TypePing, TypeStop:
		return true
	}
	return false
}

// IsEvent reports whether t is a server → client event.
func (t MessageType) IsEvent() bool {
	switch t {
	case TypeReady, TypeTranscript, TypeLLM, TypeError, TypePong:
		return true
	}
	return false
}
