package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"slotcore/internal/cache"
	convertererrors "slotcore/internal/converter/errors"
	holderrors "slotcore/internal/holds/errors"
	"slotcore/pkg/config"
	mongotx "slotcore/pkg/db/mongo"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

type mockHoldLister struct {
	mu       sync.Mutex
	calls    int
	listFunc func(ctx context.Context, prefix string) ([]*model.Hold, error)
}

func (m *mockHoldLister) ListActiveByKeyPrefix(ctx context.Context, prefix string) ([]*model.Hold, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.listFunc != nil {
		return m.listFunc(ctx, prefix)
	}
	return nil, nil
}

func (m *mockHoldLister) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockHoldLister) Create(ctx context.Context, hold *model.Hold) error { return nil }

func (m *mockHoldLister) FindByID(ctx context.Context, id string) (*model.Hold, error) {
	return nil, holderrors.ErrNotFound
}

func (m *mockHoldLister) FindActiveByKey(ctx context.Context, resourceKey string) (*model.Hold, error) {
	return nil, holderrors.ErrNotFound
}

func (m *mockHoldLister) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*model.Hold, error) {
	return nil, nil
}

func (m *mockHoldLister) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	return true, nil
}

func (m *mockHoldLister) ExtendLease(ctx context.Context, id string, token int64, expiresAt time.Time) (bool, error) {
	return true, nil
}

func (m *mockHoldLister) MarkConverted(ctx context.Context, id string, expectedVersion int64) (bool, error) {
	return true, nil
}

func (m *mockHoldLister) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockBookingLister struct {
	listFunc func(ctx context.Context, prefix string) ([]*model.Booking, error)
}

func (m *mockBookingLister) ListConfirmedByKeyPrefix(ctx context.Context, prefix string) ([]*model.Booking, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, prefix)
	}
	return nil, nil
}

func (m *mockBookingLister) Create(ctx context.Context, booking *model.Booking) error { return nil }

func (m *mockBookingLister) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return nil, convertererrors.ErrNotFound
}

func (m *mockBookingLister) FindByHoldID(ctx context.Context, holdID string) (*model.Booking, error) {
	return nil, convertererrors.ErrNotFound
}

func (m *mockBookingLister) FindConfirmedByKey(ctx context.Context, resourceKey string) (*model.Booking, error) {
	return nil, convertererrors.ErrNotFound
}

func (m *mockBookingLister) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	return true, nil
}

func testAvailabilityConfig() *config.Config {
	return &config.Config{
		CacheTTL:            time.Minute,
		CacheDebounceWindow: 10 * time.Millisecond,
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

func TestSnapshot_RebuildsOnMiss(t *testing.T) {
	cfg := testAvailabilityConfig()
	store := cache.NewStore(cfg)
	t.Cleanup(store.Stop)

	holds := &mockHoldLister{
		listFunc: func(ctx context.Context, prefix string) ([]*model.Hold, error) {
			if prefix != "yoga-60:studio-a:2026-09-01" {
				t.Errorf("unexpected prefix %q", prefix)
			}
			return []*model.Hold{
				{ResourceKey: "yoga-60:studio-a:2026-09-01T08:00:00Z"},
			}, nil
		},
	}
	bookings := &mockBookingLister{
		listFunc: func(ctx context.Context, prefix string) ([]*model.Booking, error) {
			return []*model.Booking{
				{ResourceKey: "yoga-60:studio-a:2026-09-01T09:00:00Z"},
			}, nil
		},
	}
	svc := NewAvailabilityService(holds, bookings, store, cfg)

	snapshot, err := svc.Snapshot(context.Background(), "yoga-60", "studio-a", "2026-09-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshot.HeldKeys) != 1 || snapshot.HeldKeys[0] != "yoga-60:studio-a:2026-09-01T08:00:00Z" {
		t.Errorf("unexpected held keys: %v", snapshot.HeldKeys)
	}
	if len(snapshot.BookedKeys) != 1 {
		t.Errorf("unexpected booked keys: %v", snapshot.BookedKeys)
	}
}

func TestSnapshot_ServedFromCache(t *testing.T) {
	cfg := testAvailabilityConfig()
	store := cache.NewStore(cfg)
	t.Cleanup(store.Stop)

	holds := &mockHoldLister{}
	svc := NewAvailabilityService(holds, &mockBookingLister{}, store, cfg)

	if _, err := svc.Snapshot(context.Background(), "yoga-60", "studio-a", "2026-09-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Snapshot(context.Background(), "yoga-60", "studio-a", "2026-09-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if holds.listCalls() != 1 {
		t.Errorf("expected one rebuild, got %d", holds.listCalls())
	}
}

func TestSnapshot_InvalidationForcesRebuild(t *testing.T) {
	cfg := testAvailabilityConfig()
	store := cache.NewStore(cfg)
	t.Cleanup(store.Stop)

	holds := &mockHoldLister{}
	svc := NewAvailabilityService(holds, &mockBookingLister{}, store, cfg)

	if _, err := svc.Snapshot(context.Background(), "yoga-60", "studio-a", "2026-09-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key, err := model.ParseResourceKey("yoga-60:studio-a:2026-09-01T08:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.Invalidate([]string{key.AvailabilityTag()}, cache.Immediate)

	if _, err := svc.Snapshot(context.Background(), "yoga-60", "studio-a", "2026-09-01"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if holds.listCalls() != 2 {
		t.Errorf("expected rebuild after invalidation, got %d calls", holds.listCalls())
	}
}

func TestSnapshot_InvalidInputs(t *testing.T) {
	cfg := testAvailabilityConfig()
	store := cache.NewStore(cfg)
	t.Cleanup(store.Stop)
	svc := NewAvailabilityService(&mockHoldLister{}, &mockBookingLister{}, store, cfg)

	if _, err := svc.Snapshot(context.Background(), "", "studio-a", "2026-09-01"); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected invalid input for empty service, got %v", err)
	}
	if _, err := svc.Snapshot(context.Background(), "yoga-60", "studio-a", "Sep 1"); !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected invalid input for bad date, got %v", err)
	}
}
