package model

import "time"

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// Booking is the durable record a hold converts into. At most one Confirmed
// booking may exist per resource key; the partial unique index on
// (resource_key, status=confirmed) backs that invariant at the store level.
type Booking struct {
	ID          string         `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	ResourceKey string         `json:"resource_key" bson:"resource_key" validate:"required,min=5,max=200"`
	HoldID      string         `json:"hold_id" bson:"hold_id" validate:"required,uuid4"`
	Version     int64          `json:"version" bson:"version"`
	Status      string         `json:"status" bson:"status" validate:"required,oneof=confirmed cancelled"`
	Payload     BookingPayload `json:"payload" bson:"payload"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updated_at"`
}

// BookingPayload carries the business fields the surrounding application
// attaches at conversion time. The engine stores it opaquely; payment must
// already be authorized before ConvertHold is called.
type BookingPayload struct {
	CustomerRef  string            `json:"customer_ref" bson:"customer_ref" validate:"required,min=1,max=100"`
	ServiceLabel string            `json:"service_label" bson:"service_label" validate:"omitempty,min=2,max=100"`
	DurationMin  int               `json:"duration_min" bson:"duration_min" validate:"omitempty,min=5,max=480"`
	Notes        string            `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=500"`
	Attributes   map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// ConvertRequest is the client payload for converting a hold.
type ConvertRequest struct {
	ExpectedVersion int64          `json:"expected_version" validate:"required,min=1"`
	Payload         BookingPayload `json:"payload" validate:"required"`
}

// ResourceVersion is the authoritative per-key version counter bumped by
// every durable state change. Cache entries record the counter they were
// written against and go stale when it advances.
type ResourceVersion struct {
	Key       string    `bson:"_id" json:"key"`
	Version   int64     `bson:"version" json:"version"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
