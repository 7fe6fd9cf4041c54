package core

import (
	"time"

	"github.com/google/uuid"
)

// OwnerKey is the payload field carrying the owner identity. Events whose
// payload includes it are persisted durably in addition to the in-memory log.
const OwnerKey = "owner_id"

// Event is an enriched domain notification flowing through the bus. The bus
// stamps ID, Type and Timestamp before delivery; after emission an event
// should be treated as immutable.
type Event struct {
	ID        string         `json:"id" bson:"_id"`
	Type      string         `json:"type" bson:"type"`
	Payload   map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}

// NewEvent constructs an enriched event for the given type and payload.
// The payload map is copied so later caller mutations do not leak into
// subscribers or the event log.
func NewEvent(eventType string, payload map[string]any) Event {
	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	return Event{
		ID:        NewID(),
		Type:      eventType,
		Payload:   copied,
		Timestamp: time.Now().UTC(),
	}
}

// Owner returns the owner identity carried in the payload, if any.
func (e Event) Owner() (string, bool) {
	v, ok := e.Payload[OwnerKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// NewID generates a new unique identifier for events, runs and records.
func NewID() string { return uuid.NewString() }
