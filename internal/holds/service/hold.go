package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"slotcore/internal/cache"
	"slotcore/internal/conflicts"
	"slotcore/internal/events"
	holderrors "slotcore/internal/holds/errors"
	"slotcore/internal/holds/repository"
	"slotcore/internal/holds/validator"
	lockerrors "slotcore/internal/locks/errors"
	lockservice "slotcore/internal/locks/service"
	"slotcore/pkg/config"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"

	"github.com/google/uuid"
)

// HoldManager owns the lifecycle of soft reservations: create them under a
// lock claim, keep their leases fresh, and retire them on release, expiry
// or conversion. Every mutation it performs downstream carries the hold's
// fencing token.
type HoldManager interface {
	CreateHold(ctx context.Context, req *model.HoldRequest) (*model.Hold, error)
	RenewHold(ctx context.Context, id string, token int64, ttl time.Duration) (*model.Hold, error)
	ReleaseHold(ctx context.Context, id string, token int64) error
	GetHold(ctx context.Context, id string) (*model.Hold, error)
	ExpireSweep(ctx context.Context, asOf time.Time) (int, error)
	Start()
	Stop()
}

// BookingLookup answers whether a resource key is already consumed by a
// confirmed booking. Satisfied by the converter's booking repository.
type BookingLookup interface {
	FindConfirmedByKey(ctx context.Context, resourceKey string) (*model.Booking, error)
}

type holdManager struct {
	repo      repository.HoldRepository
	locks     lockservice.LockService
	bookings  BookingLookup
	detector  conflicts.Detector
	cacheTags *cache.Store
	publisher events.Publisher
	validator *validator.HoldValidator
	cfg       *config.Config
	log       *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewHoldManager(
	repo repository.HoldRepository,
	locks lockservice.LockService,
	bookings BookingLookup,
	detector conflicts.Detector,
	cacheTags *cache.Store,
	publisher events.Publisher,
	v *validator.HoldValidator,
	cfg *config.Config,
) HoldManager {
	return &holdManager{
		repo:      repo,
		locks:     locks,
		bookings:  bookings,
		detector:  detector,
		cacheTags: cacheTags,
		publisher: publisher,
		validator: v,
		cfg:       cfg,
		log:       cfg.Log.WithComponent("holds"),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (m *holdManager) CreateHold(ctx context.Context, req *model.HoldRequest) (*model.Hold, error) {
	if err := m.validator.ValidateRequest(req); err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}
	key, err := model.ParseResourceKey(req.ResourceKey)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	ttl := m.clampTTL(time.Duration(req.TTLSeconds) * time.Second)

	// A confirmed booking consumes the key outright until it is cancelled.
	// No point contending on the lock for a slot nobody can hold.
	if booking, err := m.bookings.FindConfirmedByKey(ctx, req.ResourceKey); err == nil && booking != nil {
		return nil, apperrors.Busy("Resource is already booked", booking.ID)
	}

	lock, err := m.locks.Acquire(ctx, req.ResourceKey, req.OwnerSession, ttl)
	if err != nil {
		if errors.Is(err, lockerrors.ErrBusy) {
			return nil, m.loseToHolder(ctx, key, req)
		}
		return nil, err
	}

	now := time.Now().UTC()
	hold := &model.Hold{
		ID:           uuid.New().String(),
		ResourceKey:  req.ResourceKey,
		OwnerSession: req.OwnerSession,
		FencingToken: lock.FencingToken,
		Version:      1,
		Status:       model.HoldStatusActive,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.repo.Create(ctx, hold); err != nil {
		// The partial unique index caught a racing active hold the lock
		// steal exposed. Give the lock back before reporting Busy.
		if errors.Is(err, holderrors.ErrActiveHoldExists) {
			m.releaseLockQuiet(ctx, req.ResourceKey, lock.FencingToken)
			return nil, m.loseToHolder(ctx, key, req)
		}
		m.releaseLockQuiet(ctx, req.ResourceKey, lock.FencingToken)
		m.log.Error("Hold insert failed", "resource_key", req.ResourceKey, "error", err)
		return nil, apperrors.StoreUnavailable(err)
	}

	m.invalidateAvailability(key, cache.Immediate)
	m.publisher.Publish(ctx, model.Event{
		Kind:        model.EventAvailabilityUpdated,
		ResourceKey: req.ResourceKey,
		Payload: map[string]any{
			"hold_id": hold.ID,
			"status":  hold.Status,
		},
	})

	m.log.Info("Hold created",
		"hold_id", hold.ID,
		"resource_key", hold.ResourceKey,
		"owner_session", hold.OwnerSession,
		"fencing_token", hold.FencingToken,
		"expires_at", hold.ExpiresAt,
	)
	return hold, nil
}

// loseToHolder records the collision against the current holder and hands
// the caller a Busy describing who beat them.
func (m *holdManager) loseToHolder(ctx context.Context, key model.ResourceKey, req *model.HoldRequest) error {
	holder, err := m.repo.FindActiveByKey(ctx, req.ResourceKey)
	if err != nil || holder == nil {
		// Lock is held but the hold is not visible yet (or already being
		// swept). Still Busy, just without an attributable holder.
		return apperrors.Busy("Resource is held by another session", "")
	}

	now := time.Now().UTC()
	if _, err := m.detector.Detect(ctx, conflicts.Detection{
		ResourceKey: req.ResourceKey,
		Kind:        model.ConflictHoldCollision,
		Claims: []model.Claim{
			{Ref: holder.ID, OwnerSession: holder.OwnerSession, ArrivedAt: holder.CreatedAt},
			{Ref: "", OwnerSession: req.OwnerSession, Priority: req.Priority, ArrivedAt: now},
		},
	}); err != nil {
		m.log.Warn("Conflict detection failed", "resource_key", req.ResourceKey, "error", err)
	}
	return apperrors.Busy("Resource is held by another session", holder.ID)
}

func (m *holdManager) RenewHold(ctx context.Context, id string, token int64, ttl time.Duration) (*model.Hold, error) {
	hold, err := m.GetHold(ctx, id)
	if err != nil {
		return nil, err
	}
	if hold.FencingToken != token {
		return nil, apperrors.Expired("Hold token has been superseded")
	}
	if hold.Status == model.HoldStatusConverted {
		bookingID := ""
		if booking, err := m.bookings.FindConfirmedByKey(ctx, hold.ResourceKey); err == nil && booking != nil {
			bookingID = booking.ID
		}
		return nil, apperrors.AlreadyConverted(id, bookingID)
	}
	if hold.Status != model.HoldStatusActive {
		return nil, apperrors.Expired("Hold is no longer active")
	}
	ttl = m.clampTTL(ttl)

	// Renew the lock first: if the lease already lapsed and someone stole
	// the key, the token check fails here and we never touch the hold.
	lock, err := m.locks.Renew(ctx, hold.ResourceKey, token, ttl)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(ttl)
	ok, err := m.repo.ExtendLease(ctx, id, token, expiresAt)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if !ok {
		// Swept between the lock renew and the lease write.
		return nil, apperrors.Expired("Hold expired during renewal")
	}

	hold.ExpiresAt = expiresAt
	hold.FencingToken = lock.FencingToken
	m.log.Debug("Hold renewed", "hold_id", id, "expires_at", expiresAt)
	return hold, nil
}

func (m *holdManager) ReleaseHold(ctx context.Context, id string, token int64) error {
	hold, err := m.GetHold(ctx, id)
	if err != nil {
		return err
	}
	// The stored token drives the lock release; a client-supplied token is
	// verified only when present.
	if token != 0 && hold.FencingToken != token {
		return apperrors.Expired("Hold token has been superseded")
	}
	if hold.Status != model.HoldStatusActive {
		// Terminal already: releasing twice is a no-op, not an error.
		return nil
	}

	ok, err := m.repo.TransitionStatus(ctx, id, model.HoldStatusActive, model.HoldStatusReleased)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	if !ok {
		// Lost the race to a sweep or a conversion; both leave the key in
		// a consistent state, nothing left to do.
		return nil
	}

	m.releaseLockQuiet(ctx, hold.ResourceKey, hold.FencingToken)

	if key, err := model.ParseResourceKey(hold.ResourceKey); err == nil {
		m.invalidateAvailability(key, cache.Immediate)
	}
	m.publisher.Publish(ctx, model.Event{
		Kind:        model.EventAvailabilityUpdated,
		ResourceKey: hold.ResourceKey,
		Payload: map[string]any{
			"hold_id": id,
			"status":  model.HoldStatusReleased,
		},
	})

	m.log.Info("Hold released", "hold_id", id, "resource_key", hold.ResourceKey)
	return nil
}

func (m *holdManager) GetHold(ctx context.Context, id string) (*model.Hold, error) {
	hold, err := m.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, holderrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Hold", id)
		}
		if errors.Is(err, holderrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid hold ID")
		}
		return nil, apperrors.StoreUnavailable(err)
	}
	return hold, nil
}

// ExpireSweep retires every hold whose lease lapsed before asOf. Each hold
// is transitioned with a status CAS, so overlapping sweeps and racing
// conversions each settle exactly one outcome per hold.
func (m *holdManager) ExpireSweep(ctx context.Context, asOf time.Time) (int, error) {
	expired, err := m.repo.FindExpired(ctx, asOf, m.cfg.SweepBatchSize)
	if err != nil {
		return 0, apperrors.StoreUnavailable(err)
	}

	swept := 0
	for _, hold := range expired {
		ok, err := m.repo.TransitionStatus(ctx, hold.ID, model.HoldStatusActive, model.HoldStatusExpired)
		if err != nil {
			m.log.Error("Sweep transition failed", "hold_id", hold.ID, "error", err)
			continue
		}
		if !ok {
			// Converted, released or claimed by a concurrent sweep.
			continue
		}
		swept++

		m.releaseLockQuiet(ctx, hold.ResourceKey, hold.FencingToken)

		if key, err := model.ParseResourceKey(hold.ResourceKey); err == nil {
			m.invalidateAvailability(key, cache.Debounced)
		}
		m.publisher.Publish(ctx, model.Event{
			Kind:        model.EventHoldExpired,
			ResourceKey: hold.ResourceKey,
			Payload: map[string]any{
				"hold_id":       hold.ID,
				"owner_session": hold.OwnerSession,
			},
		})
	}

	if swept > 0 {
		m.log.Info("Expired holds swept", "count", swept, "scanned", len(expired))
	}
	return swept, nil
}

// Start launches the background sweeper. Safe to call once.
func (m *holdManager) Start() {
	go m.sweepLoop()
}

func (m *holdManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.done
}

func (m *holdManager) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SweepInterval)
			if _, err := m.ExpireSweep(ctx, now.UTC()); err != nil {
				m.log.Error("Expiry sweep failed", "error", err)
			}
			cancel()
		}
	}
}

// releaseLockQuiet gives the lock back with the hold's token. An Expired
// answer means a newer claim owns the key already, which is fine.
func (m *holdManager) releaseLockQuiet(ctx context.Context, key string, token int64) {
	if err := m.locks.Release(ctx, key, token); err != nil && !apperrors.IsCode(err, apperrors.CodeExpired) {
		m.log.Warn("Lock release failed", "key", key, "fencing_token", token, "error", err)
	}
}

func (m *holdManager) invalidateAvailability(key model.ResourceKey, mode cache.InvalidateMode) {
	m.cacheTags.Invalidate([]string{key.AvailabilityTag(), key.LocationTag()}, mode)
}

func (m *holdManager) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return m.cfg.HoldTTLDefault
	}
	if ttl > m.cfg.HoldTTLMax {
		return m.cfg.HoldTTLMax
	}
	return ttl
}
