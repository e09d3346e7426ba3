package model

import "time"

// AvailabilitySnapshot is the cached read-model of a service + location day:
// which resource keys are consumed by live holds and which by confirmed
// bookings. Everything else on the day is free.
type AvailabilitySnapshot struct {
	ServiceID   string    `json:"service_id"`
	LocationID  string    `json:"location_id"`
	Date        string    `json:"date"`
	HeldKeys    []string  `json:"held_keys"`
	BookedKeys  []string  `json:"booked_keys"`
	GeneratedAt time.Time `json:"generated_at"`
}
