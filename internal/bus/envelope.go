// Package bus carries committed events between service instances over
// Redis: Pub/Sub for the live fan-out channel, Streams for the external
// ingress feed.
package bus

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire format shared by every channel:
// {"event": <type>, "data": {...}}. data carries conversation_id as a
// canonical UUID string whenever the event concerns one.
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// MarshalEnvelope serialises an event to its UTF-8 JSON envelope.
func MarshalEnvelope(eventType string, data map[string]any) ([]byte, error) {
	return json.Marshal(Envelope{Event: eventType, Data: data})
}

// UnmarshalEnvelope parses a raw envelope back into (event, data).
func UnmarshalEnvelope(raw []byte) (string, map[string]any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Event == "" {
		return "", nil, fmt.Errorf("envelope missing event type")
	}
	return env.Event, env.Data, nil
}
