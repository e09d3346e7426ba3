package service

import (
	"context"
	"errors"
	"time"

	"slotcore/internal/cache"
	"slotcore/internal/conflicts"
	convertererrors "slotcore/internal/converter/errors"
	"slotcore/internal/converter/repository"
	"slotcore/internal/events"
	holderrors "slotcore/internal/holds/errors"
	holdrepository "slotcore/internal/holds/repository"
	"slotcore/internal/holds/validator"
	lockservice "slotcore/internal/locks/service"
	"slotcore/pkg/config"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// ConverterService turns an active hold into a durable booking. The flip is
// a single Mongo transaction: mark the hold Converted with an exact version
// match, insert the booking, bump the resource version. Exactly one
// conversion wins per hold; repeats of the winning call get the same
// booking back.
type ConverterService interface {
	ConvertHold(ctx context.Context, holdID string, token int64, req *model.ConvertRequest) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*model.Booking, error)
}

type converterService struct {
	bookings  repository.BookingRepository
	versions  repository.ResourceVersionRepository
	holds     holdrepository.HoldRepository
	locks     lockservice.LockService
	detector  conflicts.Detector
	cacheTags *cache.Store
	publisher events.Publisher
	validator *validator.HoldValidator
	cfg       *config.Config
	log       *logger.Logger
}

func NewConverterService(
	bookings repository.BookingRepository,
	versions repository.ResourceVersionRepository,
	holds holdrepository.HoldRepository,
	locks lockservice.LockService,
	detector conflicts.Detector,
	cacheTags *cache.Store,
	publisher events.Publisher,
	v *validator.HoldValidator,
	cfg *config.Config,
) ConverterService {
	return &converterService{
		bookings:  bookings,
		versions:  versions,
		holds:     holds,
		locks:     locks,
		detector:  detector,
		cacheTags: cacheTags,
		publisher: publisher,
		validator: v,
		cfg:       cfg,
		log:       cfg.Log.WithComponent("converter"),
	}
}

func (s *converterService) ConvertHold(ctx context.Context, holdID string, token int64, req *model.ConvertRequest) (*model.Booking, error) {
	if err := s.validator.ValidateConvert(req); err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	hold, err := s.findHold(ctx, holdID)
	if err != nil {
		return nil, err
	}

	// A hold that already converted answers every repeat with the booking
	// it produced. The caller cannot tell a retry from a first success.
	if hold.Status == model.HoldStatusConverted {
		return s.existingBooking(ctx, holdID)
	}
	if hold.Status != model.HoldStatusActive || !hold.ExpiresAt.After(time.Now().UTC()) {
		return nil, apperrors.Expired("Hold is no longer active")
	}
	// The stored token authorizes the conversion; a client-supplied token
	// is verified only when present.
	if token != 0 && hold.FencingToken != token {
		return nil, apperrors.Expired("Hold token has been superseded")
	}
	if hold.Version != req.ExpectedVersion {
		s.recordVersionConflict(ctx, hold, req.ExpectedVersion)
		return nil, apperrors.VersionConflict(req.ExpectedVersion, hold.Version)
	}

	booking := &model.Booking{
		ID:          uuid.New().String(),
		ResourceKey: hold.ResourceKey,
		HoldID:      hold.ID,
		Version:     1,
		Status:      model.BookingStatusConfirmed,
		Payload:     req.Payload,
	}

	err = s.holds.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		ok, err := s.holds.MarkConverted(sessCtx, holdID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return convertererrors.ErrNotConfirmed
		}
		// Re-check inside the transaction; the partial unique index on
		// confirmed bookings is the last line of defense, not the first.
		if existing, err := s.bookings.FindConfirmedByKey(sessCtx, hold.ResourceKey); err == nil && existing != nil {
			return convertererrors.ErrBookingExists
		}
		if err := s.bookings.Create(sessCtx, booking); err != nil {
			return err
		}
		if _, err := s.versions.Bump(sessCtx, hold.ResourceKey); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return s.convertFailed(ctx, hold, req, err)
	}

	s.afterCommit(ctx, hold, booking)

	s.log.Info("Hold converted",
		"hold_id", holdID,
		"booking_id", booking.ID,
		"resource_key", hold.ResourceKey,
		"fencing_token", hold.FencingToken,
	)
	return booking, nil
}

// convertFailed maps an aborted conversion transaction onto the caller's
// view of the race it lost.
func (s *converterService) convertFailed(ctx context.Context, hold *model.Hold, req *model.ConvertRequest, cause error) (*model.Booking, error) {
	switch {
	case errors.Is(cause, convertererrors.ErrNotConfirmed):
		// The CAS missed: the hold moved, or its version advanced, between
		// our read and the transaction. Re-read to say which.
		fresh, err := s.findHold(ctx, hold.ID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == model.HoldStatusConverted {
			return s.existingBooking(ctx, hold.ID)
		}
		if fresh.Status != model.HoldStatusActive {
			return nil, apperrors.Expired("Hold is no longer active")
		}
		s.recordVersionConflict(ctx, fresh, req.ExpectedVersion)
		return nil, apperrors.VersionConflict(req.ExpectedVersion, fresh.Version)

	case errors.Is(cause, convertererrors.ErrBookingExists):
		// Another hold's conversion beat us to the key. That should be
		// impossible while our hold is active, so record it for review.
		s.recordBookingCollision(ctx, hold)
		existing, err := s.bookings.FindConfirmedByKey(ctx, hold.ResourceKey)
		if err == nil && existing != nil {
			return nil, apperrors.Busy("Resource is already booked", existing.ID)
		}
		return nil, apperrors.Busy("Resource is already booked", "")

	default:
		s.log.Error("Conversion transaction failed",
			"hold_id", hold.ID,
			"resource_key", hold.ResourceKey,
			"error", cause,
		)
		if apperrors.IsAppError(cause) {
			return nil, cause
		}
		return nil, apperrors.StoreUnavailable(cause)
	}
}

func (s *converterService) afterCommit(ctx context.Context, hold *model.Hold, booking *model.Booking) {
	// The booking is durable; the lock has served its purpose. Expired here
	// just means a newer claim already owns the key.
	if err := s.locks.Release(ctx, hold.ResourceKey, hold.FencingToken); err != nil && !apperrors.IsCode(err, apperrors.CodeExpired) {
		s.log.Warn("Lock release after conversion failed",
			"resource_key", hold.ResourceKey,
			"fencing_token", hold.FencingToken,
			"error", err,
		)
	}

	if key, err := model.ParseResourceKey(hold.ResourceKey); err == nil {
		s.cacheTags.Invalidate([]string{key.AvailabilityTag(), key.LocationTag()}, cache.Immediate)
	}

	s.publisher.Publish(ctx, model.Event{
		Kind:        model.EventBookingConfirmed,
		ResourceKey: hold.ResourceKey,
		Payload: map[string]any{
			"booking_id": booking.ID,
			"hold_id":    hold.ID,
		},
	})
}

func (s *converterService) CancelBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == model.BookingStatusCancelled {
		return booking, nil
	}

	ok, err := s.bookings.TransitionStatus(ctx, bookingID, model.BookingStatusConfirmed, model.BookingStatusCancelled)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if !ok {
		fresh, err := s.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == model.BookingStatusCancelled {
			return fresh, nil
		}
		return nil, apperrors.InvalidInput("Booking cannot be cancelled in its current state")
	}

	if _, err := s.versions.Bump(ctx, booking.ResourceKey); err != nil {
		s.log.Warn("Version bump after cancel failed", "resource_key", booking.ResourceKey, "error", err)
	}
	if key, err := model.ParseResourceKey(booking.ResourceKey); err == nil {
		s.cacheTags.Invalidate([]string{key.AvailabilityTag(), key.LocationTag()}, cache.Immediate)
	}
	s.publisher.Publish(ctx, model.Event{
		Kind:        model.EventAvailabilityUpdated,
		ResourceKey: booking.ResourceKey,
		Payload: map[string]any{
			"booking_id": bookingID,
			"status":     model.BookingStatusCancelled,
		},
	})

	booking.Status = model.BookingStatusCancelled
	s.log.Info("Booking cancelled", "booking_id", bookingID, "resource_key", booking.ResourceKey)
	return booking, nil
}

func (s *converterService) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, convertererrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, apperrors.StoreUnavailable(err)
	}
	return booking, nil
}

func (s *converterService) findHold(ctx context.Context, holdID string) (*model.Hold, error) {
	hold, err := s.holds.FindByID(ctx, holdID)
	if err != nil {
		if errors.Is(err, holderrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Hold", holdID)
		}
		if errors.Is(err, holderrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid hold ID")
		}
		return nil, apperrors.StoreUnavailable(err)
	}
	return hold, nil
}

func (s *converterService) existingBooking(ctx context.Context, holdID string) (*model.Booking, error) {
	booking, err := s.bookings.FindByHoldID(ctx, holdID)
	if err != nil {
		if errors.Is(err, convertererrors.ErrNotFound) {
			// Converted hold with no booking means a torn write that the
			// transaction should have made impossible.
			s.log.Error("Converted hold has no booking", "hold_id", holdID)
			return nil, apperrors.Internal("Conversion record is inconsistent", nil)
		}
		return nil, apperrors.StoreUnavailable(err)
	}
	return booking, nil
}

// recordVersionConflict writes the audit trail for a stale optimistic
// read: the caller converted against a version the hold has moved past.
func (s *converterService) recordVersionConflict(ctx context.Context, hold *model.Hold, expected int64) {
	s.log.Debug("Stale optimistic read",
		"hold_id", hold.ID,
		"expected_version", expected,
		"actual_version", hold.Version,
	)
	if _, err := s.detector.Detect(ctx, conflicts.Detection{
		ResourceKey: hold.ResourceKey,
		Kind:        model.ConflictVersion,
		Claims: []model.Claim{
			{Ref: hold.ID, OwnerSession: hold.OwnerSession, ArrivedAt: hold.CreatedAt},
		},
	}); err != nil {
		s.log.Warn("Conflict detection failed", "resource_key", hold.ResourceKey, "error", err)
	}
}

func (s *converterService) recordBookingCollision(ctx context.Context, hold *model.Hold) {
	if _, err := s.detector.Detect(ctx, conflicts.Detection{
		ResourceKey: hold.ResourceKey,
		Kind:        model.ConflictBookingCollision,
		Claims: []model.Claim{
			{Ref: hold.ID, OwnerSession: hold.OwnerSession, ArrivedAt: hold.CreatedAt},
		},
	}); err != nil {
		s.log.Warn("Conflict detection failed", "resource_key", hold.ResourceKey, "error", err)
	}
}
