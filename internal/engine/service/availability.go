package service

import (
	"context"
	"regexp"
	"time"

	"slotcore/internal/cache"
	converterrepository "slotcore/internal/converter/repository"
	holdrepository "slotcore/internal/holds/repository"
	"slotcore/pkg/config"
	apperrors "slotcore/pkg/errors"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// AvailabilityService serves day snapshots through the coherence cache.
// A hit is returned as-is; a miss rebuilds the snapshot from the holds and
// bookings collections and caches it under the day's availability tags,
// so any hold or booking mutation on the day invalidates it.
type AvailabilityService interface {
	Snapshot(ctx context.Context, serviceID, locationID, date string) (*model.AvailabilitySnapshot, error)
}

type availabilityService struct {
	holds     holdrepository.HoldRepository
	bookings  converterrepository.BookingRepository
	cacheTags *cache.Store
	log       *logger.Logger
}

func NewAvailabilityService(
	holds holdrepository.HoldRepository,
	bookings converterrepository.BookingRepository,
	cacheTags *cache.Store,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		holds:     holds,
		bookings:  bookings,
		cacheTags: cacheTags,
		log:       cfg.Log.WithComponent("availability"),
	}
}

func (s *availabilityService) Snapshot(ctx context.Context, serviceID, locationID, date string) (*model.AvailabilitySnapshot, error) {
	if serviceID == "" || locationID == "" {
		return nil, apperrors.InvalidInput("service_id and location_id are required")
	}
	if !dateFormat.MatchString(date) {
		return nil, apperrors.InvalidInput("date must be YYYY-MM-DD")
	}

	cacheKey := "availability:" + serviceID + ":" + locationID + ":" + date
	if cached, ok := s.cacheTags.Get(cacheKey); ok {
		if snapshot, ok := cached.(*model.AvailabilitySnapshot); ok {
			return snapshot, nil
		}
	}

	snapshot, err := s.rebuild(ctx, serviceID, locationID, date)
	if err != nil {
		return nil, err
	}

	s.cacheTags.Put(cacheKey, []string{
		"availability:" + serviceID + ":" + date,
		"availability:loc:" + locationID + ":" + date,
	}, snapshot)

	return snapshot, nil
}

func (s *availabilityService) rebuild(ctx context.Context, serviceID, locationID, date string) (*model.AvailabilitySnapshot, error) {
	prefix := serviceID + ":" + locationID + ":" + date

	holds, err := s.holds.ListActiveByKeyPrefix(ctx, prefix)
	if err != nil {
		s.log.Error("Availability rebuild failed on holds", "prefix", prefix, "error", err)
		return nil, apperrors.StoreUnavailable(err)
	}
	bookings, err := s.bookings.ListConfirmedByKeyPrefix(ctx, prefix)
	if err != nil {
		s.log.Error("Availability rebuild failed on bookings", "prefix", prefix, "error", err)
		return nil, apperrors.StoreUnavailable(err)
	}

	snapshot := &model.AvailabilitySnapshot{
		ServiceID:   serviceID,
		LocationID:  locationID,
		Date:        date,
		HeldKeys:    make([]string, 0, len(holds)),
		BookedKeys:  make([]string, 0, len(bookings)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, h := range holds {
		snapshot.HeldKeys = append(snapshot.HeldKeys, h.ResourceKey)
	}
	for _, b := range bookings {
		snapshot.BookedKeys = append(snapshot.BookedKeys, b.ResourceKey)
	}
	return snapshot, nil
}
