package conflicts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"slotcore/pkg/config"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

type mockConflictRepository struct {
	createFunc func(ctx context.Context, record *model.ConflictRecord) error
	findFunc   func(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error)

	mu      sync.Mutex
	created []*model.ConflictRecord
}

func (m *mockConflictRepository) Create(ctx context.Context, record *model.ConflictRecord) error {
	m.mu.Lock()
	m.created = append(m.created, record)
	m.mu.Unlock()
	if m.createFunc != nil {
		return m.createFunc(ctx, record)
	}
	return nil
}

func (m *mockConflictRepository) FindByResourceKey(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, resourceKey, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockConflictRepository) Archive(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, event model.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func testDetectorConfig() *config.Config {
	return &config.Config{
		ConflictStrategies: map[string]string{"default": model.StrategyFirstComeFirstServe},
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

func TestDetect_RequiresClaims(t *testing.T) {
	d := NewDetector(&mockConflictRepository{}, &capturingPublisher{}, testDetectorConfig())

	_, err := d.Detect(context.Background(), Detection{ResourceKey: "yoga-60:studio-a:2026-09-01T08:00:00Z"})
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected invalid input without claims, got %v", err)
	}
}

func TestDetect_NotifiesLosersOnly(t *testing.T) {
	repo := &mockConflictRepository{}
	publisher := &capturingPublisher{}
	d := NewDetector(repo, publisher, testDetectorConfig())

	record, err := d.Detect(context.Background(), Detection{
		ResourceKey: "yoga-60:studio-a:2026-09-01T08:00:00Z",
		Kind:        model.ConflictHoldCollision,
		Claims:      claimSet(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	winner, ok := record.Winner()
	if !ok || winner.Ref != "claim-a" {
		t.Fatalf("expected claim-a to win under first-come-first-serve, got %+v", winner)
	}

	if len(publisher.events) != 2 {
		t.Fatalf("expected one event per losing claim, got %d", len(publisher.events))
	}
	for _, event := range publisher.events {
		if event.Kind != model.EventConflictDetected {
			t.Errorf("expected conflict:detected event, got %s", event.Kind)
		}
		loser := event.Payload["losing_claim"]
		if loser == winner.Ref {
			t.Errorf("winner %q must not be notified as a loser", winner.Ref)
		}
		if event.Payload["winning_claim"] != winner.Ref {
			t.Errorf("expected winning_claim %q in payload, got %v", winner.Ref, event.Payload["winning_claim"])
		}
		if event.Payload["winning_session"] != winner.OwnerSession {
			t.Errorf("expected winning_session %q, got %v", winner.OwnerSession, event.Payload["winning_session"])
		}
	}
}

func TestDetect_RollbackVoidsEveryClaim(t *testing.T) {
	cfg := testDetectorConfig()
	cfg.ConflictStrategies = map[string]string{"default": model.StrategyRollbackAll}
	publisher := &capturingPublisher{}
	d := NewDetector(&mockConflictRepository{}, publisher, cfg)

	record, err := d.Detect(context.Background(), Detection{
		ResourceKey: "yoga-60:studio-a:2026-09-01T08:00:00Z",
		Kind:        model.ConflictHoldCollision,
		Claims:      claimSet(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !record.Voided {
		t.Error("expected a voided record under rollback_all")
	}
	if _, ok := record.Winner(); ok {
		t.Error("a voided conflict has no winner")
	}
	if len(publisher.events) != len(claimSet()) {
		t.Errorf("expected every claim notified when all roll back, got %d events", len(publisher.events))
	}
}

func TestDetect_PersistenceFailure(t *testing.T) {
	repo := &mockConflictRepository{
		createFunc: func(ctx context.Context, record *model.ConflictRecord) error {
			return errors.New("connection reset")
		},
	}
	d := NewDetector(repo, &capturingPublisher{}, testDetectorConfig())

	_, err := d.Detect(context.Background(), Detection{
		ResourceKey: "yoga-60:studio-a:2026-09-01T08:00:00Z",
		Kind:        model.ConflictHoldCollision,
		Claims:      claimSet(),
	})
	if !apperrors.IsCode(err, apperrors.CodeStoreUnavailable) {
		t.Errorf("expected store unavailable, got %v", err)
	}
}

func TestHistory_ReturnsTotal(t *testing.T) {
	repo := &mockConflictRepository{
		findFunc: func(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error) {
			return []*model.ConflictRecord{{ID: "conflict-1", ResourceKey: resourceKey}}, 9, nil
		},
	}
	d := NewDetector(repo, &capturingPublisher{}, testDetectorConfig())

	records, total, err := d.History(context.Background(), "yoga-60:studio-a:2026-09-01T08:00:00Z", 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || total != 9 {
		t.Errorf("expected 1 record of 9 total, got %d of %d", len(records), total)
	}
}
