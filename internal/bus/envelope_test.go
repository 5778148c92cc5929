package bus

import (
	"encoding/json"
	"testing"
)

func TestMarshalEnvelope(t *testing.T) {
	raw, err := MarshalEnvelope("chat.message_created", map[string]any{
		"conversation_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"sender_id":       float64(42),
	})
	if err != nil {
		t.Fatalf("MarshalEnvelope: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != "chat.message_created" {
		t.Errorf("event = %q", env.Event)
	}
	if env.Data["conversation_id"] != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("conversation_id = %v", env.Data["conversation_id"])
	}
}

func TestUnmarshalEnvelope(t *testing.T) {
	event, data, err := UnmarshalEnvelope([]byte(`{"event":"chat.conversation_updated","data":{"action":"closed"}}`))
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if event != "chat.conversation_updated" {
		t.Errorf("event = %q", event)
	}
	if data["action"] != "closed" {
		t.Errorf("action = %v", data["action"])
	}
}

func TestUnmarshalEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{"},
		{"missing event", `{"data":{"x":1}}`},
		{"empty event", `{"event":"","data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := UnmarshalEnvelope([]byte(tt.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
