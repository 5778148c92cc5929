package cursor

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	token := Encode(ts, id)
	got, ok := Decode(token)
	if !ok {
		t.Fatalf("Decode(%q) failed", token)
	}
	if !got.TS.Equal(ts) {
		t.Errorf("ts = %v, want %v", got.TS, ts)
	}
	if got.ID != id {
		t.Errorf("id = %v, want %v", got.ID, id)
	}
}

func TestEncodeZeroTimestamp(t *testing.T) {
	id := uuid.New()
	token := Encode(time.Time{}, id)

	got, ok := Decode(token)
	if !ok {
		t.Fatalf("Decode(%q) failed", token)
	}
	if !got.TS.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("zero ts should encode as epoch, got %v", got.TS)
	}
}

func TestDecodeToleratesPadding(t *testing.T) {
	token := Encode(time.Now().UTC(), uuid.New())
	if _, ok := Decode(token + "=="); !ok {
		t.Error("Decode should tolerate trailing padding")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"no separator", "aGVsbG8"},                                // "hello"
		{"bad timestamp", "bm90YXRpbWV8YWJj"},                      // "notatime|abc"
		{"bad uuid", "MjAyNS0wMS0wMVQwMDowMDowMFp8bm90LWEtdXVpZA"}, // "2025-01-01T00:00:00Z|not-a-uuid"
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Decode(tt.token); ok {
				t.Errorf("Decode(%q) = ok, want failure", tt.token)
			}
		})
	}
}
