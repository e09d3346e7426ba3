package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	holderrors "slotcore/internal/holds/errors"
	"slotcore/pkg/config"
	mongotx "slotcore/pkg/db/mongo"
	"slotcore/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Holds"
)

type HoldRepository interface {
	Create(ctx context.Context, hold *model.Hold) error
	FindByID(ctx context.Context, id string) (*model.Hold, error)
	FindActiveByKey(ctx context.Context, resourceKey string) (*model.Hold, error)
	FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*model.Hold, error)
	// TransitionStatus flips status from->to only if the hold is still in
	// the from state, so concurrent sweeps and releases cannot double-apply.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
	// ExtendLease pushes expires_at, guarded by the fencing token and the
	// Active status.
	ExtendLease(ctx context.Context, id string, token int64, expiresAt time.Time) (bool, error)
	// MarkConverted is the optimistic half of conversion: Active + exact
	// version, or no match. Runs inside the conversion transaction.
	MarkConverted(ctx context.Context, id string, expectedVersion int64) (bool, error)
	ListActiveByKeyPrefix(ctx context.Context, prefix string) ([]*model.Hold, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoHoldRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoHoldRepository(cfg *config.Config) HoldRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoHoldRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoHoldRepository) Create(ctx context.Context, hold *model.Hold) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	hold.CreatedAt = now
	hold.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, hold); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Partial unique index on (resource_key, status=active).
			return holderrors.ErrActiveHoldExists
		}
		return fmt.Errorf("failed to create hold: %w", err)
	}
	return nil
}

func (r *mongoHoldRepository) FindByID(ctx context.Context, id string) (*model.Hold, error) {
	if id == "" {
		return nil, holderrors.ErrInvalidID
	}

	var hold model.Hold
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&hold)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, holderrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find hold: %w", err)
	}
	return &hold, nil
}

func (r *mongoHoldRepository) FindActiveByKey(ctx context.Context, resourceKey string) (*model.Hold, error) {
	var hold model.Hold
	err := r.collection.FindOne(ctx, bson.M{
		"resource_key": resourceKey,
		"status":       model.HoldStatusActive,
	}).Decode(&hold)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, holderrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active hold: %w", err)
	}
	return &hold, nil
}

func (r *mongoHoldRepository) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*model.Hold, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{
		"status":     model.HoldStatusActive,
		"expires_at": bson.M{"$lte": asOf},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	defer cursor.Close(ctx)

	var holds []*model.Hold
	if err = cursor.All(ctx, &holds); err != nil {
		return nil, fmt.Errorf("failed to decode expired holds: %w", err)
	}
	return holds, nil
}

func (r *mongoHoldRepository) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{
			"status":     to,
			"updated_at": time.Now().UTC(),
		}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition hold status: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (r *mongoHoldRepository) ExtendLease(ctx context.Context, id string, token int64, expiresAt time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id":           id,
			"status":        model.HoldStatusActive,
			"fencing_token": token,
		},
		bson.M{"$set": bson.M{
			"expires_at": expiresAt,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to extend hold lease: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (r *mongoHoldRepository) MarkConverted(ctx context.Context, id string, expectedVersion int64) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id":     id,
			"status":  model.HoldStatusActive,
			"version": expectedVersion,
		},
		bson.M{"$set": bson.M{
			"status":     model.HoldStatusConverted,
			"updated_at": time.Now().UTC(),
		}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark hold converted: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (r *mongoHoldRepository) ListActiveByKeyPrefix(ctx context.Context, prefix string) ([]*model.Hold, error) {
	opts := options.Find().SetSort(bson.D{{Key: "resource_key", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{
		"resource_key": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
		"status":       model.HoldStatusActive,
		"expires_at":   bson.M{"$gt": time.Now().UTC()},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active holds: %w", err)
	}
	defer cursor.Close(ctx)

	var holds []*model.Hold
	if err = cursor.All(ctx, &holds); err != nil {
		return nil, fmt.Errorf("failed to decode active holds: %w", err)
	}
	return holds, nil
}

func (r *mongoHoldRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
