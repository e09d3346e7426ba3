package conflicts

import (
	"context"
	"time"

	"slotcore/internal/conflicts/repository"
	"slotcore/internal/events"
	"slotcore/pkg/config"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"

	"github.com/google/uuid"
)

// Detector classifies races the lock service already decided and turns
// them into durable, explainable conflict records. It never changes who
// won; it records why, notifies the losers, and hands escalations to a
// human when the strategy says so.
type Detector interface {
	Detect(ctx context.Context, in Detection) (*model.ConflictRecord, error)
	History(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error)
}

// Detection describes one observed race.
type Detection struct {
	ResourceKey string
	Kind        string
	Claims      []model.Claim
	// SuggestedKey is an alternative slot computed by the caller's
	// resource-search logic, passed through to losing claimants.
	SuggestedKey string
}

type detector struct {
	repo   repository.ConflictRepository
	events events.Publisher
	cfg    *config.Config
	log    *logger.Logger
}

func NewDetector(repo repository.ConflictRepository, publisher events.Publisher, cfg *config.Config) Detector {
	return &detector{
		repo:   repo,
		events: publisher,
		cfg:    cfg,
		log:    cfg.Log.WithComponent("conflicts"),
	}
}

func (d *detector) Detect(ctx context.Context, in Detection) (*model.ConflictRecord, error) {
	if len(in.Claims) == 0 {
		return nil, apperrors.InvalidInput("Conflict detection requires at least one claim")
	}

	key, err := model.ParseResourceKey(in.ResourceKey)
	strategy := model.StrategyFirstComeFirstServe
	if err == nil {
		strategy = d.cfg.StrategyFor(key.Class())
	}

	resolution, err := Resolve(in.Claims, strategy)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	now := time.Now().UTC()
	record := &model.ConflictRecord{
		ID:              uuid.New().String(),
		ResourceKey:     in.ResourceKey,
		Kind:            in.Kind,
		CompetingClaims: in.Claims,
		Strategy:        strategy,
		ResolvedClaim:   resolution.WinnerRef,
		Voided:          resolution.Voided,
		Escalated:       resolution.Escalated,
		SuggestedKey:    in.SuggestedKey,
		DetectedAt:      now,
	}
	if !resolution.Escalated {
		record.ResolvedAt = now
	}

	if err := d.repo.Create(ctx, record); err != nil {
		d.log.Error("Failed to persist conflict record",
			"resource_key", in.ResourceKey,
			"kind", in.Kind,
			"error", err,
		)
		return nil, apperrors.StoreUnavailable(err)
	}

	d.notifyLosers(ctx, record)

	d.log.Info("Conflict detected",
		"conflict_id", record.ID,
		"resource_key", record.ResourceKey,
		"kind", record.Kind,
		"strategy", record.Strategy,
		"resolved_claim", record.ResolvedClaim,
		"escalated", record.Escalated,
		"claims", len(record.CompetingClaims),
	)
	return record, nil
}

func (d *detector) History(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error) {
	records, total, err := d.repo.FindByResourceKey(ctx, resourceKey, limit, offset)
	if err != nil {
		return nil, 0, apperrors.StoreUnavailable(err)
	}
	return records, total, nil
}

// notifyLosers publishes one conflict:detected event per losing claim,
// carrying the reason and the suggested alternative when there is one.
func (d *detector) notifyLosers(ctx context.Context, record *model.ConflictRecord) {
	winner, hasWinner := record.Winner()
	for _, claim := range record.CompetingClaims {
		if hasWinner && claim.Ref == winner.Ref {
			continue
		}
		d.events.Publish(ctx, model.Event{
			Kind:        model.EventConflictDetected,
			ResourceKey: record.ResourceKey,
			Payload: map[string]any{
				"conflict_id":     record.ID,
				"kind":            record.Kind,
				"strategy":        record.Strategy,
				"losing_claim":    claim.Ref,
				"owner_session":   claim.OwnerSession,
				"winning_claim":   winner.Ref,
				"winning_session": winner.OwnerSession,
				"voided":          record.Voided,
				"escalated":       record.Escalated,
				"suggested_key":   record.SuggestedKey,
			},
		})
	}
}
