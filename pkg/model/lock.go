package model

import "time"

// SlotLock is the single synchronization point for a resource key. One
// document lives per key for the lifetime of the key; acquisition flips
// ownership and increments the fencing token, it never deletes the
// document, so tokens stay monotonic across successive claims.
type SlotLock struct {
	Key          string    `bson:"_id" json:"key"`
	Owner        string    `bson:"owner" json:"owner"`
	FencingToken int64     `bson:"fencing_token" json:"fencing_token"`
	ExpiresAt    time.Time `bson:"expires_at" json:"expires_at"`
	Released     bool      `bson:"released" json:"released"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// Live reports whether the lock currently excludes other claimants.
func (l *SlotLock) Live(now time.Time) bool {
	return !l.Released && l.ExpiresAt.After(now)
}
