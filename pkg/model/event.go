package model

import "time"

// Event kinds fanned out by the broadcaster.
const (
	EventAvailabilityUpdated = "availability:updated"
	EventConflictDetected    = "conflict:detected"
	EventHoldExpired         = "hold:expired"
	EventBookingConfirmed    = "booking:confirmed"
)

// Event is one ordered state-change notification. Sequence numbers are
// issued per resource key; subscribers see events for the same key in
// sequence order, with no guarantee across keys.
type Event struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	ResourceKey string         `json:"resource_key"`
	Sequence    uint64         `json:"sequence"`
	Payload     map[string]any `json:"payload,omitempty"`
	At          time.Time      `json:"at"`
}
