package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	convertererrors "slotcore/internal/converter/errors"
	"slotcore/pkg/config"
	"slotcore/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// FindByHoldID resolves the booking a hold converted into, used for
	// idempotent re-conversion.
	FindByHoldID(ctx context.Context, holdID string) (*model.Booking, error)
	FindConfirmedByKey(ctx context.Context, resourceKey string) (*model.Booking, error)
	ListConfirmedByKeyPrefix(ctx context.Context, prefix string) ([]*model.Booking, error)
	// TransitionStatus flips status from->to only while the booking is still
	// in the from state.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Partial unique index on (resource_key, status=confirmed).
			return convertererrors.ErrBookingExists
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, convertererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) FindByHoldID(ctx context.Context, holdID string) (*model.Booking, error) {
	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"hold_id": holdID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, convertererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking by hold: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) FindConfirmedByKey(ctx context.Context, resourceKey string) (*model.Booking, error) {
	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{
		"resource_key": resourceKey,
		"status":       model.BookingStatusConfirmed,
	}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, convertererrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find confirmed booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) ListConfirmedByKeyPrefix(ctx context.Context, prefix string) ([]*model.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "resource_key", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{
		"resource_key": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
		"status":       model.BookingStatusConfirmed,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode confirmed bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{
			"$set": bson.M{
				"status":     to,
				"updated_at": time.Now().UTC().Truncate(time.Millisecond),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition booking status: %w", err)
	}
	return result.MatchedCount > 0, nil
}
