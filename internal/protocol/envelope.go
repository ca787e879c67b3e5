// Package protocol parses the JSON envelopes received on the stream and
// routes them by kind.
//
// Every frame is one JSON object:
//
//	{"bot_type": "scooby", "type": "audio", "data": "<base64 pcm>"}
//	{"type": "status", "connected": true}
//	{"type": "model_speaking", "speaking": false}
//
// bot_type is optional. When present and different from the client's own
// tag the envelope belongs to another bot multiplexed on the same stream and
// is ignored.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by [Parse] when a frame is not a JSON envelope.
var ErrMalformed = errors.New("protocol: malformed envelope")

// Kind classifies an envelope.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatus
	KindAudio
	KindSpeaking
)

// Wire names of the known kinds.
const (
	TypeStatus   = "status"
	TypeAudio    = "audio"
	TypeSpeaking = "model_speaking"
)

// ParseKind maps a wire type name to a Kind. Anything unrecognised,
// including the empty string, is KindUnknown.
func ParseKind(s string) Kind {
	switch s {
	case TypeStatus:
		return KindStatus
	case TypeAudio:
		return KindAudio
	case TypeSpeaking:
		return KindSpeaking
	default:
		return KindUnknown
	}
}

// String returns the wire name of the kind, or "unknown".
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return TypeStatus
	case KindAudio:
		return TypeAudio
	case KindSpeaking:
		return TypeSpeaking
	default:
		return "unknown"
	}
}

// Envelope is one decoded inbound message.
type Envelope struct {
	// BotType is the recipient tag; empty means "any bot".
	BotType string `json:"bot_type,omitempty"`

	// Type is the raw wire type; see [Envelope.Kind].
	Type string `json:"type,omitempty"`

	// Connected is the payload of a status envelope.
	Connected bool `json:"connected,omitempty"`

	// Data is the base64 PCM payload of an audio envelope.
	Data string `json:"data,omitempty"`

	// Speaking is the payload of a model_speaking envelope.
	Speaking bool `json:"speaking,omitempty"`
}

// Kind returns the classified type of the envelope.
func (e Envelope) Kind() Kind {
	return ParseKind(e.Type)
}

// For reports whether the envelope is addressed to the bot with the given
// tag.
func (e Envelope) For(tag string) bool {
	return e.BotType == "" || e.BotType == tag
}

// Parse decodes raw as an envelope.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return env, nil
}
