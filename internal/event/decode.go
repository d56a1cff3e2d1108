package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors for payload decoding and validation.
var (
	ErrMalformedJSON    = errors.New("malformed JSON payload")
	ErrMissingField     = errors.New("required field missing")
	ErrInvalidFieldType = errors.New("field has invalid type")
	ErrInvalidTimestamp = errors.New("ts is not a valid ISO-8601 timestamp")
)

// Result represents the outcome of decoding a raw message body.
// Exactly one of Event and Err is meaningful: Valid=true carries the decoded
// event, Valid=false carries the rejection reason.
type Result struct {
	Valid bool
	Event *Event
	Err   error
}

// wireEvent is the inbound payload shape. Extra fields are ignored.
type wireEvent struct {
	EventID   string   `json:"event_id"`
	TS        string   `json:"ts"`
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id"`
	EventName string   `json:"event_name"`
	URL       *string  `json:"url"`
	Referrer  *string  `json:"referrer"`
	UserAgent *string  `json:"user_agent"`
	Revenue   *float64 `json:"revenue"`
}

// Decode parses a raw message body into a validated Event.
// A rejection (Valid=false) means the message should be skipped and logged;
// it never stops the enclosing stream.
func Decode(payload []byte) Result {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return reject(fmt.Errorf("%w: %s", ErrInvalidFieldType, typeErr.Field))
		}
		return reject(ErrMalformedJSON)
	}

	if wire.TS == "" {
		return reject(fmt.Errorf("%w: ts", ErrMissingField))
	}
	if wire.UserID == "" {
		return reject(fmt.Errorf("%w: user_id", ErrMissingField))
	}
	if wire.SessionID == "" {
		return reject(fmt.Errorf("%w: session_id", ErrMissingField))
	}
	if wire.EventName == "" {
		return reject(fmt.Errorf("%w: event_name", ErrMissingField))
	}

	ts, err := time.Parse(time.RFC3339, wire.TS)
	if err != nil {
		return reject(fmt.Errorf("%w: %q", ErrInvalidTimestamp, wire.TS))
	}

	eventID := wire.EventID
	if eventID == "" {
		// The upstream producer does not always supply an idempotency key.
		// Synthesize one rather than permitting duplicate storage under redelivery.
		eventID = SynthesizeEventID(wire.SessionID, wire.TS, wire.EventName)
	}

	raw := append([]byte(nil), payload...)

	return Result{
		Valid: true,
		Event: &Event{
			EventID:    eventID,
			Timestamp:  ts,
			UserID:     wire.UserID,
			SessionID:  wire.SessionID,
			EventName:  wire.EventName,
			URL:        wire.URL,
			Referrer:   wire.Referrer,
			UserAgent:  wire.UserAgent,
			Revenue:    wire.Revenue,
			RawPayload: raw,
		},
	}
}

func reject(err error) Result {
	return Result{Valid: false, Err: err}
}
