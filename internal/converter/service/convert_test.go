package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"slotcore/internal/cache"
	"slotcore/internal/conflicts"
	convertererrors "slotcore/internal/converter/errors"
	holderrors "slotcore/internal/holds/errors"
	"slotcore/internal/holds/validator"
	"slotcore/pkg/config"
	mongotx "slotcore/pkg/db/mongo"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

type mockBookingRepository struct {
	createFunc             func(ctx context.Context, booking *model.Booking) error
	findByIDFunc           func(ctx context.Context, id string) (*model.Booking, error)
	findByHoldIDFunc       func(ctx context.Context, holdID string) (*model.Booking, error)
	findConfirmedByKeyFunc func(ctx context.Context, resourceKey string) (*model.Booking, error)
	transitionStatusFunc   func(ctx context.Context, id, from, to string) (bool, error)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, convertererrors.ErrNotFound
}

func (m *mockBookingRepository) FindByHoldID(ctx context.Context, holdID string) (*model.Booking, error) {
	if m.findByHoldIDFunc != nil {
		return m.findByHoldIDFunc(ctx, holdID)
	}
	return nil, convertererrors.ErrNotFound
}

func (m *mockBookingRepository) FindConfirmedByKey(ctx context.Context, resourceKey string) (*model.Booking, error) {
	if m.findConfirmedByKeyFunc != nil {
		return m.findConfirmedByKeyFunc(ctx, resourceKey)
	}
	return nil, convertererrors.ErrNotFound
}

func (m *mockBookingRepository) ListConfirmedByKeyPrefix(ctx context.Context, prefix string) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	if m.transitionStatusFunc != nil {
		return m.transitionStatusFunc(ctx, id, from, to)
	}
	return true, nil
}

type mockVersionRepository struct {
	mu    sync.Mutex
	bumps []string
}

func (m *mockVersionRepository) Bump(ctx context.Context, resourceKey string) (int64, error) {
	m.mu.Lock()
	m.bumps = append(m.bumps, resourceKey)
	m.mu.Unlock()
	return int64(len(m.bumps)), nil
}

func (m *mockVersionRepository) Current(ctx context.Context, resourceKey string) (int64, error) {
	return 0, nil
}

type mockConverterHoldRepository struct {
	findByIDFunc      func(ctx context.Context, id string) (*model.Hold, error)
	markConvertedFunc func(ctx context.Context, id string, expectedVersion int64) (bool, error)
}

func (m *mockConverterHoldRepository) Create(ctx context.Context, hold *model.Hold) error {
	return nil
}

func (m *mockConverterHoldRepository) FindByID(ctx context.Context, id string) (*model.Hold, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, holderrors.ErrNotFound
}

func (m *mockConverterHoldRepository) FindActiveByKey(ctx context.Context, resourceKey string) (*model.Hold, error) {
	return nil, holderrors.ErrNotFound
}

func (m *mockConverterHoldRepository) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*model.Hold, error) {
	return nil, nil
}

func (m *mockConverterHoldRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	return true, nil
}

func (m *mockConverterHoldRepository) ExtendLease(ctx context.Context, id string, token int64, expiresAt time.Time) (bool, error) {
	return true, nil
}

func (m *mockConverterHoldRepository) MarkConverted(ctx context.Context, id string, expectedVersion int64) (bool, error) {
	if m.markConvertedFunc != nil {
		return m.markConvertedFunc(ctx, id, expectedVersion)
	}
	return true, nil
}

func (m *mockConverterHoldRepository) ListActiveByKeyPrefix(ctx context.Context, prefix string) ([]*model.Hold, error) {
	return nil, nil
}

func (m *mockConverterHoldRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockLockService struct {
	mu       sync.Mutex
	released []int64
}

func (m *mockLockService) Acquire(ctx context.Context, key, owner string, lease time.Duration) (*model.SlotLock, error) {
	return &model.SlotLock{Key: key, Owner: owner, FencingToken: 1}, nil
}

func (m *mockLockService) Renew(ctx context.Context, key string, token int64, lease time.Duration) (*model.SlotLock, error) {
	return &model.SlotLock{Key: key, FencingToken: token}, nil
}

func (m *mockLockService) Release(ctx context.Context, key string, token int64) error {
	m.mu.Lock()
	m.released = append(m.released, token)
	m.mu.Unlock()
	return nil
}

func (m *mockLockService) Inspect(ctx context.Context, key string) (*model.SlotLock, error) {
	return nil, apperrors.NotFoundWithID("Lock", key)
}

type mockDetector struct {
	mu         sync.Mutex
	detections []conflicts.Detection
}

func (m *mockDetector) Detect(ctx context.Context, in conflicts.Detection) (*model.ConflictRecord, error) {
	m.mu.Lock()
	m.detections = append(m.detections, in)
	m.mu.Unlock()
	return &model.ConflictRecord{ResourceKey: in.ResourceKey, Kind: in.Kind}, nil
}

func (m *mockDetector) History(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error) {
	return nil, 0, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event model.Event) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
}

func testConverterConfig() *config.Config {
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

type converterFixture struct {
	svc       ConverterService
	bookings  *mockBookingRepository
	versions  *mockVersionRepository
	holds     *mockConverterHoldRepository
	locks     *mockLockService
	detector  *mockDetector
	publisher *mockPublisher
}

func newConverterFixture(t *testing.T) *converterFixture {
	t.Helper()
	cfg := testConverterConfig()
	f := &converterFixture{
		bookings:  &mockBookingRepository{},
		versions:  &mockVersionRepository{},
		holds:     &mockConverterHoldRepository{},
		locks:     &mockLockService{},
		detector:  &mockDetector{},
		publisher: &mockPublisher{},
	}
	store := cache.NewStore(cfg)
	t.Cleanup(store.Stop)
	f.svc = NewConverterService(
		f.bookings,
		f.versions,
		f.holds,
		f.locks,
		f.detector,
		store,
		f.publisher,
		validator.NewHoldValidator(cfg.Log),
		cfg,
	)
	return f
}

const (
	testResourceKey = "yoga-60:studio-a:2026-09-01T08:00:00Z"
	testHoldID      = "0f1e9a1c-22aa-4d7e-9d40-62a55f6e9f01"
)

func activeHold() *model.Hold {
	return &model.Hold{
		ID:           testHoldID,
		ResourceKey:  testResourceKey,
		OwnerSession: "session-1",
		FencingToken: 7,
		Version:      1,
		Status:       model.HoldStatusActive,
		ExpiresAt:    time.Now().UTC().Add(time.Minute),
	}
}

func validConvertRequest() *model.ConvertRequest {
	return &model.ConvertRequest{
		ExpectedVersion: 1,
		Payload: model.BookingPayload{
			CustomerRef:  "customer-1",
			ServiceLabel: "Yoga 60",
			DurationMin:  60,
		},
	}
}

func TestConvertHold_Success(t *testing.T) {
	f := newConverterFixture(t)
	hold := activeHold()
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return hold, nil
	}
	var created *model.Booking
	f.bookings.createFunc = func(ctx context.Context, booking *model.Booking) error {
		created = booking
		return nil
	}

	booking, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusConfirmed {
		t.Errorf("expected confirmed booking, got %s", booking.Status)
	}
	if booking.HoldID != testHoldID {
		t.Errorf("expected booking tied to hold, got %s", booking.HoldID)
	}
	if created == nil || created.ID != booking.ID {
		t.Error("expected booking inserted inside the transaction")
	}
	if len(f.versions.bumps) != 1 || f.versions.bumps[0] != testResourceKey {
		t.Errorf("expected one version bump for the key, got %v", f.versions.bumps)
	}
	if len(f.locks.released) != 1 || f.locks.released[0] != 7 {
		t.Errorf("expected lock released with the hold's token, got %v", f.locks.released)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Kind != model.EventBookingConfirmed {
		t.Errorf("expected booking:confirmed event, got %+v", f.publisher.events)
	}
}

func TestConvertHold_TokenMismatch(t *testing.T) {
	f := newConverterFixture(t)
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return activeHold(), nil
	}

	_, err := f.svc.ConvertHold(context.Background(), testHoldID, 6, validConvertRequest())
	if !apperrors.IsCode(err, apperrors.CodeExpired) {
		t.Errorf("expected expired for superseded token, got %v", err)
	}
}

func TestConvertHold_VersionConflict(t *testing.T) {
	f := newConverterFixture(t)
	hold := activeHold()
	hold.Version = 2
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return hold, nil
	}

	_, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if !apperrors.IsCode(err, apperrors.CodeVersionConflict) {
		t.Errorf("expected version conflict, got %v", err)
	}
	if len(f.detector.detections) != 1 || f.detector.detections[0].Kind != model.ConflictVersion {
		t.Errorf("expected a version conflict recorded, got %+v", f.detector.detections)
	}
}

func TestConvertHold_NoClientToken(t *testing.T) {
	f := newConverterFixture(t)
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return activeHold(), nil
	}

	booking, err := f.svc.ConvertHold(context.Background(), testHoldID, 0, validConvertRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusConfirmed {
		t.Errorf("expected confirmed booking, got %s", booking.Status)
	}
	if len(f.locks.released) != 1 || f.locks.released[0] != 7 {
		t.Errorf("expected lock released with the stored token, got %v", f.locks.released)
	}
}

func TestConvertHold_LapsedHold(t *testing.T) {
	f := newConverterFixture(t)
	hold := activeHold()
	hold.ExpiresAt = time.Now().UTC().Add(-time.Second)
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return hold, nil
	}

	_, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if !apperrors.IsCode(err, apperrors.CodeExpired) {
		t.Errorf("expected expired for lapsed hold, got %v", err)
	}
}

func TestConvertHold_RepeatReturnsExistingBooking(t *testing.T) {
	f := newConverterFixture(t)
	hold := activeHold()
	hold.Status = model.HoldStatusConverted
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return hold, nil
	}
	existing := &model.Booking{ID: "booking-1", HoldID: testHoldID, Status: model.BookingStatusConfirmed}
	f.bookings.findByHoldIDFunc = func(ctx context.Context, holdID string) (*model.Booking, error) {
		return existing, nil
	}

	booking, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.ID != existing.ID {
		t.Errorf("expected the original booking back, got %s", booking.ID)
	}
	if len(f.versions.bumps) != 0 {
		t.Error("no version bump expected on a repeat")
	}
}

func TestConvertHold_CASMissLostToConversion(t *testing.T) {
	f := newConverterFixture(t)
	existing := &model.Booking{ID: "booking-1", HoldID: testHoldID, Status: model.BookingStatusConfirmed}
	calls := 0
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		calls++
		hold := activeHold()
		if calls > 1 {
			// The re-read after the CAS miss sees the winner's write.
			hold.Status = model.HoldStatusConverted
		}
		return hold, nil
	}
	f.holds.markConvertedFunc = func(ctx context.Context, id string, expectedVersion int64) (bool, error) {
		return false, nil
	}
	f.bookings.findByHoldIDFunc = func(ctx context.Context, holdID string) (*model.Booking, error) {
		return existing, nil
	}

	booking, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.ID != existing.ID {
		t.Errorf("expected the winner's booking, got %s", booking.ID)
	}
}

func TestConvertHold_CASMissVersionAdvanced(t *testing.T) {
	f := newConverterFixture(t)
	calls := 0
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		calls++
		hold := activeHold()
		if calls > 1 {
			hold.Version = 3
		}
		return hold, nil
	}
	f.holds.markConvertedFunc = func(ctx context.Context, id string, expectedVersion int64) (bool, error) {
		return false, nil
	}

	_, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if !apperrors.IsCode(err, apperrors.CodeVersionConflict) {
		t.Errorf("expected version conflict, got %v", err)
	}
	if len(f.detector.detections) != 1 || f.detector.detections[0].Kind != model.ConflictVersion {
		t.Errorf("expected a version conflict recorded, got %+v", f.detector.detections)
	}
}

func TestConvertHold_BookingCollision(t *testing.T) {
	f := newConverterFixture(t)
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return activeHold(), nil
	}
	f.bookings.createFunc = func(ctx context.Context, booking *model.Booking) error {
		return convertererrors.ErrBookingExists
	}
	winner := &model.Booking{ID: "booking-w", ResourceKey: testResourceKey, Status: model.BookingStatusConfirmed}
	f.bookings.findConfirmedByKeyFunc = func(ctx context.Context, resourceKey string) (*model.Booking, error) {
		return winner, nil
	}

	_, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if !apperrors.IsCode(err, apperrors.CodeBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if len(f.detector.detections) != 1 || f.detector.detections[0].Kind != model.ConflictBookingCollision {
		t.Errorf("expected booking collision recorded, got %+v", f.detector.detections)
	}
}

func TestConvertHold_InvalidRequest(t *testing.T) {
	f := newConverterFixture(t)

	req := validConvertRequest()
	req.Payload.CustomerRef = ""
	_, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, req)
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestConvertHold_StoreFailure(t *testing.T) {
	f := newConverterFixture(t)
	f.holds.findByIDFunc = func(ctx context.Context, id string) (*model.Hold, error) {
		return activeHold(), nil
	}
	f.bookings.createFunc = func(ctx context.Context, booking *model.Booking) error {
		return errors.New("write concern timeout")
	}

	_, err := f.svc.ConvertHold(context.Background(), testHoldID, 7, validConvertRequest())
	if !apperrors.IsCode(err, apperrors.CodeStoreUnavailable) {
		t.Errorf("expected store unavailable, got %v", err)
	}
}

func TestCancelBooking_Success(t *testing.T) {
	f := newConverterFixture(t)
	f.bookings.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return &model.Booking{ID: id, ResourceKey: testResourceKey, Status: model.BookingStatusConfirmed}, nil
	}

	booking, err := f.svc.CancelBooking(context.Background(), "booking-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusCancelled {
		t.Errorf("expected cancelled status, got %s", booking.Status)
	}
	if len(f.versions.bumps) != 1 {
		t.Errorf("expected one version bump, got %d", len(f.versions.bumps))
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Kind != model.EventAvailabilityUpdated {
		t.Errorf("expected availability:updated event, got %+v", f.publisher.events)
	}
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	f := newConverterFixture(t)
	f.bookings.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return &model.Booking{ID: id, ResourceKey: testResourceKey, Status: model.BookingStatusCancelled}, nil
	}
	f.bookings.transitionStatusFunc = func(ctx context.Context, id, from, to string) (bool, error) {
		t.Error("no transition expected for an already cancelled booking")
		return false, nil
	}

	booking, err := f.svc.CancelBooking(context.Background(), "booking-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusCancelled {
		t.Errorf("expected cancelled, got %s", booking.Status)
	}
	if len(f.versions.bumps) != 0 {
		t.Error("no version bump expected on a repeat cancel")
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	f := newConverterFixture(t)

	_, err := f.svc.GetBooking(context.Background(), "missing")
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
