package repository

import (
	"context"
	"fmt"
	"time"

	"slotcore/pkg/config"
	"slotcore/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Conflict_records"
)

// ConflictRepository persists the audit trail of detected conflicts.
// Normal flow only ever appends; Archive is the sole delete path.
type ConflictRepository interface {
	Create(ctx context.Context, record *model.ConflictRecord) error
	FindByResourceKey(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error)
	Archive(ctx context.Context, olderThan time.Time) (int64, error)
}

type mongoConflictRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoConflictRepository(cfg *config.Config) ConflictRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoConflictRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoConflictRepository) Create(ctx context.Context, record *model.ConflictRecord) error {
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to create conflict record: %w", err)
	}
	return nil
}

func (r *mongoConflictRepository) FindByResourceKey(ctx context.Context, resourceKey string, limit int, offset int64) ([]*model.ConflictRecord, int64, error) {
	filter := bson.M{"resource_key": resourceKey}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count conflict records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "detected_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find conflict records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*model.ConflictRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode conflict records: %w", err)
	}
	return records, total, nil
}

func (r *mongoConflictRepository) Archive(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"detected_at": bson.M{"$lt": olderThan},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to archive conflict records: %w", err)
	}
	return result.DeletedCount, nil
}
