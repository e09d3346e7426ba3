package model

import "time"

// Conflict kinds.
const (
	ConflictHoldCollision    = "hold_collision"
	ConflictBookingCollision = "booking_collision"
	ConflictVersion          = "version_conflict"
	ConflictCache            = "cache_conflict"
)

// Resolution strategies, selectable per resource class.
const (
	StrategyFirstComeFirstServe = "fcfs"
	StrategyLastWins            = "last_wins"
	StrategyPriorityBased       = "priority"
	StrategyRollbackAll         = "rollback_all"
	StrategyConsensus           = "consensus"
	StrategyArbitration         = "arbitration"
	StrategyAdminIntervention   = "admin"
)

// Claim is one competitor in a conflict: a hold or conversion attempt that
// reached the engine inside the same lock decision window.
type Claim struct {
	Ref          string    `json:"ref" bson:"ref"`
	OwnerSession string    `json:"owner_session" bson:"owner_session"`
	Priority     int       `json:"priority" bson:"priority"`
	ArrivedAt    time.Time `json:"arrived_at" bson:"arrived_at"`
}

// ConflictRecord is the durable audit trail of a detected conflict and its
// resolution. Records are only removed by archival, never by normal flow.
type ConflictRecord struct {
	ID              string    `json:"id,omitempty" bson:"_id,omitempty"`
	ResourceKey     string    `json:"resource_key" bson:"resource_key"`
	Kind            string    `json:"kind" bson:"kind"`
	CompetingClaims []Claim   `json:"competing_claims" bson:"competing_claims"`
	Strategy        string    `json:"resolution_strategy" bson:"resolution_strategy"`
	ResolvedClaim   string    `json:"resolved_claim,omitempty" bson:"resolved_claim,omitempty"`
	Voided          bool      `json:"voided" bson:"voided"`
	Escalated       bool      `json:"escalated" bson:"escalated"`
	SuggestedKey    string    `json:"suggested_key,omitempty" bson:"suggested_key,omitempty"`
	DetectedAt      time.Time `json:"detected_at" bson:"detected_at"`
	ResolvedAt      time.Time `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
}

// Winner returns the winning claim, if the record resolved to one.
func (r *ConflictRecord) Winner() (Claim, bool) {
	if r.ResolvedClaim == "" {
		return Claim{}, false
	}
	for _, c := range r.CompetingClaims {
		if c.Ref == r.ResolvedClaim {
			return c, true
		}
	}
	return Claim{}, false
}
