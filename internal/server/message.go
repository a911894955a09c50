// Package server defines the chat message record and its wire codec, shared
// by the relay core and both transports.
package server

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the kind of a Message. Registration carries its own
// tag rather than reusing the text tag, so dispatch switches stay exhaustive.
type MessageType int

const (
	TypeRegister MessageType = iota
	TypeText
	TypeLogout
	TypeShutdown
)

var typeNames = map[MessageType]string{
	TypeRegister: "register",
	TypeText:     "text",
	TypeLogout:   "logout",
	TypeShutdown: "shutdown",
}

var typesByName = map[string]MessageType{
	"register": TypeRegister,
	"text":     TypeText,
	"logout":   TypeLogout,
	"shutdown": TypeShutdown,
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// MarshalJSON encodes the type as its lowercase string tag.
func (t MessageType) MarshalJSON() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown message type %d", int(t))
	}
	return json.Marshal(name)
}

// UnmarshalJSON rejects tags outside the defined set.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("message type must be a string: %w", err)
	}
	parsed, ok := typesByName[name]
	if !ok {
		return fmt.Errorf("unknown message type %q", name)
	}
	*t = parsed
	return nil
}

// Message is the unit exchanged between client and server. SenderID is zero
// until the server assigns one at registration. Values are never mutated
// after construction.
type Message struct {
	SenderID int         `json:"sender_id"`
	Type     MessageType `json:"type"`
	Body     string      `json:"body"`
}

// EncodeMessage serializes a message to its JSON wire form, without framing.
func EncodeMessage(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses one wire frame. Decoding an encoded message yields a
// value with identical sender id, type, and body.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
