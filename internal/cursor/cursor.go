// Package cursor implements the opaque pagination token shared by the
// message and conversation listings.
//
// Format: URL-safe base64 of "<RFC3339 timestamp>|<uuid>", padding stripped.
// Ordering by (timestamp, id) makes pagination deterministic even when
// several rows share a timestamp.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor is a decoded position in a listing.
type Cursor struct {
	TS time.Time
	ID uuid.UUID
}

// Encode creates the token for a (timestamp, id) position.
// A zero timestamp encodes as the epoch so that rows without one
// (conversations that never received a message) still paginate.
func Encode(ts time.Time, id uuid.UUID) string {
	if ts.IsZero() {
		ts = time.Unix(0, 0).UTC()
	}
	raw := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token. Returns a zero cursor and false if the token is
// empty or malformed.
func Decode(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}

	// Tolerate clients that send the token with padding intact.
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return Cursor{}, false
	}

	ts, idPart, found := strings.Cut(string(b), "|")
	if !found {
		return Cursor{}, false
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, false
	}

	id, err := uuid.Parse(idPart)
	if err != nil {
		return Cursor{}, false
	}

	return Cursor{TS: t, ID: id}, true
}
