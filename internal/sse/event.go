package sse

import (
	"encoding/json"
	"fmt"
)

// Event is one server-sent event as emitted by the GitUnderstand backend:
// a JSON object with a type discriminator and a free-form payload.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// StringField returns the named payload field if it is a string.
func (e *Event) StringField(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}

// IntField returns the named payload field if it is a JSON number.
func (e *Event) IntField(key string) (int, bool) {
	if e.Payload == nil {
		return 0, false
	}
	// JSON numbers decode as float64
	f, ok := e.Payload[key].(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// BoolField returns the named payload field if it is a boolean.
func (e *Event) BoolField(key string) bool {
	if e.Payload == nil {
		return false
	}
	b, _ := e.Payload[key].(bool)
	return b
}

// DecodePayload unmarshals the full payload into v.
func (e *Event) DecodePayload(v any) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
