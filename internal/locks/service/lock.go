package service

import (
	"context"
	"errors"
	"time"

	lockerrors "slotcore/internal/locks/errors"
	"slotcore/internal/locks/repository"
	"slotcore/pkg/config"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

// LockService issues, renews and releases exclusive claims on resource
// keys. Acquire and Renew are linearizable per key; everything else in the
// engine serializes through them.
type LockService interface {
	Acquire(ctx context.Context, key, owner string, lease time.Duration) (*model.SlotLock, error)
	Renew(ctx context.Context, key string, token int64, lease time.Duration) (*model.SlotLock, error)
	Release(ctx context.Context, key string, token int64) error
	Inspect(ctx context.Context, key string) (*model.SlotLock, error)
}

type lockService struct {
	repo repository.LockRepository
	cfg  *config.Config
	log  *logger.Logger
}

func NewLockService(repo repository.LockRepository, cfg *config.Config) LockService {
	return &lockService{
		repo: repo,
		cfg:  cfg,
		log:  cfg.Log.WithComponent("locks"),
	}
}

func (s *lockService) Acquire(ctx context.Context, key, owner string, lease time.Duration) (*model.SlotLock, error) {
	if key == "" {
		return nil, apperrors.InvalidInput("Lock key cannot be empty")
	}
	if owner == "" {
		return nil, apperrors.InvalidInput("Lock owner cannot be empty")
	}
	lease = s.clampLease(lease)

	// A bounded attempt: slow store beats waiting forever, the caller
	// treats the timeout as Busy and decides whether to come back.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LockAcquireTimeout)
	defer cancel()

	lock, err := s.repo.Acquire(ctx, key, owner, lease)
	if err != nil {
		if errors.Is(err, lockerrors.ErrBusy) {
			return nil, lockerrors.ErrBusy
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.log.Warn("Lock acquire timed out", "key", key, "owner", owner)
			return nil, lockerrors.ErrBusy
		}
		s.log.Error("Lock acquire failed", "key", key, "owner", owner, "error", err)
		return nil, apperrors.LockServiceUnavailable(err)
	}

	s.log.Debug("Lock acquired",
		"key", key,
		"owner", owner,
		"fencing_token", lock.FencingToken,
		"expires_at", lock.ExpiresAt,
	)
	return lock, nil
}

func (s *lockService) Renew(ctx context.Context, key string, token int64, lease time.Duration) (*model.SlotLock, error) {
	lease = s.clampLease(lease)

	lock, err := s.repo.Renew(ctx, key, token, lease)
	if err != nil {
		if errors.Is(err, lockerrors.ErrTokenMismatch) {
			return nil, apperrors.Expired("Lock lease lapsed or was superseded")
		}
		s.log.Error("Lock renew failed", "key", key, "fencing_token", token, "error", err)
		return nil, apperrors.LockServiceUnavailable(err)
	}
	return lock, nil
}

func (s *lockService) Release(ctx context.Context, key string, token int64) error {
	err := s.repo.Release(ctx, key, token)
	if err != nil {
		if errors.Is(err, lockerrors.ErrTokenMismatch) {
			return apperrors.Expired("Lock is owned by a newer claim")
		}
		s.log.Error("Lock release failed", "key", key, "fencing_token", token, "error", err)
		return apperrors.LockServiceUnavailable(err)
	}
	s.log.Debug("Lock released", "key", key, "fencing_token", token)
	return nil
}

func (s *lockService) Inspect(ctx context.Context, key string) (*model.SlotLock, error) {
	lock, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, lockerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Lock", key)
		}
		return nil, apperrors.LockServiceUnavailable(err)
	}
	return lock, nil
}

func (s *lockService) clampLease(lease time.Duration) time.Duration {
	if lease <= 0 {
		return s.cfg.LockLeaseDefault
	}
	if lease > s.cfg.LockLeaseMax {
		return s.cfg.LockLeaseMax
	}
	return lease
}
