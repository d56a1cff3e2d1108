// Package event defines the clickstream event model and payload decoding
// for the sessionizer pipeline.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Well-known event names with aggregate significance.
const (
	NamePageView = "page_view"
	NameCheckout = "checkout"
)

// Event is one immutable user-interaction record decoded from a stream message.
// Optional payload fields are pointers so absence survives into storage as NULL.
type Event struct {
	// EventID is the idempotency key. It is taken from the payload when
	// present and synthesized deterministically otherwise, so it is never empty.
	EventID string

	Timestamp time.Time
	UserID    string
	SessionID string
	EventName string

	URL       *string
	Referrer  *string
	UserAgent *string

	// Revenue is present only for monetizing event types.
	Revenue *float64

	// RawPayload is the verbatim message body, retained for audit.
	RawPayload []byte
}

// SynthesizeEventID derives a deterministic idempotency key for payloads that
// do not carry an event_id. Redelivery of the same payload produces the same
// key; two distinct events with identical (session_id, ts, event_name) collapse
// into one stored row, which is the documented bound of this fallback.
// Format: hex(SHA256(session_id + "\x00" + ts + "\x00" + event_name)).
// NUL separators keep the preimage unambiguous.
func SynthesizeEventID(sessionID, ts, eventName string) string {
	data := make([]byte, 0, len(sessionID)+len(ts)+len(eventName)+2)
	data = append(data, sessionID...)
	data = append(data, 0)
	data = append(data, ts...)
	data = append(data, 0)
	data = append(data, eventName...)

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
