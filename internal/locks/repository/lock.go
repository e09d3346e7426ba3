package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockerrors "slotcore/internal/locks/errors"
	"slotcore/pkg/config"
	"slotcore/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Slot_locks"
)

// LockRepository is the single-writer-per-key synchronization primitive.
// One document per resource key; the document is never deleted, so the
// fencing token stays monotonic across successive claims on the same key.
type LockRepository interface {
	Acquire(ctx context.Context, key, owner string, lease time.Duration) (*model.SlotLock, error)
	Renew(ctx context.Context, key string, token int64, lease time.Duration) (*model.SlotLock, error)
	Release(ctx context.Context, key string, token int64) error
	Find(ctx context.Context, key string) (*model.SlotLock, error)
}

type mongoLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLockRepository(cfg *config.Config) LockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLockRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// Acquire claims the key with a single compare-and-swap: either steal a
// dead lock (released or lease lapsed) while incrementing the token, or
// insert the first document for the key. Any other state is Busy.
func (r *mongoLockRepository) Acquire(ctx context.Context, key, owner string, lease time.Duration) (*model.SlotLock, error) {
	now := time.Now().UTC()

	filter := bson.M{
		"_id": key,
		"$or": []bson.M{
			{"released": true},
			{"expires_at": bson.M{"$lte": now}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"owner":      owner,
			"expires_at": now.Add(lease),
			"released":   false,
			"updated_at": now,
		},
		"$inc": bson.M{"fencing_token": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var lock model.SlotLock
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&lock)
	if err == nil {
		return &lock, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	// No stealable document. Either the key was never locked (insert the
	// first claim) or a live lock exists (duplicate key on insert = Busy).
	first := &model.SlotLock{
		Key:          key,
		Owner:        owner,
		FencingToken: 1,
		ExpiresAt:    now.Add(lease),
		Released:     false,
		UpdatedAt:    now,
	}
	if _, err := r.collection.InsertOne(ctx, first); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, lockerrors.ErrBusy
		}
		return nil, fmt.Errorf("failed to insert lock: %w", err)
	}
	return first, nil
}

// Renew extends the lease only while the presented token still owns the
// live lock.
func (r *mongoLockRepository) Renew(ctx context.Context, key string, token int64, lease time.Duration) (*model.SlotLock, error) {
	now := time.Now().UTC()

	filter := bson.M{
		"_id":           key,
		"fencing_token": token,
		"released":      false,
		"expires_at":    bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"expires_at": now.Add(lease),
			"updated_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var lock model.SlotLock
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, lockerrors.ErrTokenMismatch
		}
		return nil, fmt.Errorf("failed to renew lock: %w", err)
	}
	return &lock, nil
}

// Release marks the lock released under the presented token. Releasing a
// lock that already lapsed under the same token is a no-op success; a
// token superseded by a newer claim fails, so a late release can never
// drop someone else's lease.
func (r *mongoLockRepository) Release(ctx context.Context, key string, token int64) error {
	now := time.Now().UTC()

	filter := bson.M{
		"_id":           key,
		"fencing_token": token,
		"released":      false,
	}
	update := bson.M{
		"$set": bson.M{
			"released":   true,
			"updated_at": now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	lock, err := r.Find(ctx, key)
	if err != nil {
		if errors.Is(err, lockerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if lock.FencingToken == token {
		// Same claim, already released. Idempotent.
		return nil
	}
	return lockerrors.ErrTokenMismatch
}

func (r *mongoLockRepository) Find(ctx context.Context, key string) (*model.SlotLock, error) {
	var lock model.SlotLock
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, lockerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find lock: %w", err)
	}
	return &lock, nil
}
