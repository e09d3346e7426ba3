package conflicts

import (
	"errors"
	"sort"

	"slotcore/pkg/model"
)

// ErrNoClaims is returned when a conflict is raised without competitors.
var ErrNoClaims = errors.New("conflict requires at least one claim")

// Resolution is the outcome of applying a strategy to a set of competing
// claims.
type Resolution struct {
	// WinnerRef is the surviving claim, empty when no automatic winner
	// exists (rollback, consensus, escalation).
	WinnerRef string
	// Voided means every competing claim is cancelled and callers must
	// re-request.
	Voided bool
	// Escalated means automatic resolution is blocked pending a human.
	Escalated bool
}

// Resolve applies a strategy to the competing claims. It is pure: the same
// claims and strategy always produce the same resolution. No clock, no
// randomness; ties break on owner session then claim ref so the outcome is
// stable regardless of input order.
func Resolve(claims []model.Claim, strategy string) (Resolution, error) {
	if len(claims) == 0 {
		return Resolution{}, ErrNoClaims
	}

	ordered := make([]model.Claim, len(claims))
	copy(ordered, claims)
	sortClaims(ordered)

	switch strategy {
	case model.StrategyLastWins:
		latest := ordered[0]
		for _, c := range ordered[1:] {
			if c.ArrivedAt.After(latest.ArrivedAt) {
				latest = c
			}
		}
		return Resolution{WinnerRef: latest.Ref}, nil

	case model.StrategyPriorityBased:
		best := ordered[0]
		for _, c := range ordered[1:] {
			if c.Priority > best.Priority {
				best = c
			}
		}
		return Resolution{WinnerRef: best.Ref}, nil

	case model.StrategyRollbackAll:
		return Resolution{Voided: true}, nil

	case model.StrategyConsensus:
		// Surfaced to the caller for manual confirmation; no automatic
		// winner is picked.
		return Resolution{}, nil

	case model.StrategyArbitration:
		best := ordered[0]
		for _, c := range ordered[1:] {
			if c.OwnerSession < best.OwnerSession {
				best = c
			}
		}
		return Resolution{WinnerRef: best.Ref}, nil

	case model.StrategyAdminIntervention:
		return Resolution{Escalated: true}, nil

	default:
		// FirstComeFirstServe. ordered is already earliest-first.
		return Resolution{WinnerRef: ordered[0].Ref}, nil
	}
}

// sortClaims orders claims by arrival, breaking ties on session then ref so
// resolution is deterministic even for identical timestamps.
func sortClaims(claims []model.Claim) {
	sort.Slice(claims, func(i, j int) bool {
		if !claims[i].ArrivedAt.Equal(claims[j].ArrivedAt) {
			return claims[i].ArrivedAt.Before(claims[j].ArrivedAt)
		}
		if claims[i].OwnerSession != claims[j].OwnerSession {
			return claims[i].OwnerSession < claims[j].OwnerSession
		}
		return claims[i].Ref < claims[j].Ref
	})
}
