package model

import "time"

const (
	HoldStatusActive    = "active"
	HoldStatusExpired   = "expired"
	HoldStatusConverted = "converted"
	HoldStatusReleased  = "released"
)

// Hold is a time-bounded exclusive claim on a resource key, backed by a
// SlotLock claim. The hold is the only entity permitted to act with its
// fencing token. Expired, Converted and Released are terminal states.
type Hold struct {
	ID           string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	ResourceKey  string    `json:"resource_key" bson:"resource_key" validate:"required,min=5,max=200"`
	OwnerSession string    `json:"owner_session" bson:"owner_session" validate:"required,min=1,max=100"`
	FencingToken int64     `json:"fencing_token" bson:"fencing_token"`
	Version      int64     `json:"version" bson:"version"`
	Status       string    `json:"status" bson:"status" validate:"omitempty,oneof=active expired converted released"`
	ExpiresAt    time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// HoldRequest is the client payload for creating a hold.
type HoldRequest struct {
	ResourceKey  string `json:"resource_key" validate:"required,min=5,max=200,resource_key"`
	OwnerSession string `json:"owner_session" validate:"required,min=1,max=100"`
	TTLSeconds   int    `json:"ttl_seconds" validate:"omitempty,min=1,max=3600"`
	Priority     int    `json:"priority" validate:"omitempty,min=0,max=100"`
}

// Claimable reports whether the hold still guards its resource key.
func (h *Hold) Claimable(now time.Time) bool {
	return h.Status == HoldStatusActive && h.ExpiresAt.After(now)
}
