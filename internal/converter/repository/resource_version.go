package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotcore/pkg/config"
	"slotcore/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	VersionCollectionName = "Resource_versions"
)

// ResourceVersionRepository maintains the per-key version counters the
// cache layer validates entries against. Counters only ever increase.
type ResourceVersionRepository interface {
	// Bump increments the counter for the key, creating it at 1 on first
	// use, and returns the new value.
	Bump(ctx context.Context, resourceKey string) (int64, error)
	Current(ctx context.Context, resourceKey string) (int64, error)
}

type mongoResourceVersionRepository struct {
	collection *mongo.Collection
}

func NewMongoResourceVersionRepository(cfg *config.Config) ResourceVersionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoResourceVersionRepository{
		collection: db.Collection(VersionCollectionName),
	}
}

func (r *mongoResourceVersionRepository) Bump(ctx context.Context, resourceKey string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var rv model.ResourceVersion
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": resourceKey},
		bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
		},
		opts,
	).Decode(&rv)
	if err != nil {
		return 0, fmt.Errorf("failed to bump resource version: %w", err)
	}
	return rv.Version, nil
}

func (r *mongoResourceVersionRepository) Current(ctx context.Context, resourceKey string) (int64, error) {
	var rv model.ResourceVersion
	err := r.collection.FindOne(ctx, bson.M{"_id": resourceKey}).Decode(&rv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read resource version: %w", err)
	}
	return rv.Version, nil
}
