package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LocksCollection is the MongoDB collection holding entity locks
const LocksCollection = "entity_locks"

type lockDocument struct {
	Key  string `bson:"_id"`
	Lock `bson:",inline"`
}

// MongoLocker stores locks in MongoDB keyed by "type:id"
type MongoLocker struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoLocker creates a MongoDB-backed locker
func NewMongoLocker(db *mongo.Database) *MongoLocker {
	return &MongoLocker{collection: db.Collection(LocksCollection), now: time.Now}
}

// Acquire upserts the lock when it is free, expired or already ours. A
// duplicate key on upsert means another holder owns it.
func (m *MongoLocker) Acquire(ctx context.Context, entityType, entityID, holder string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := m.now().UTC().Truncate(time.Millisecond)
	key := Key(entityType, entityID)

	filter := bson.M{
		"_id": key,
		"$or": bson.A{
			bson.M{"holder": holder},
			bson.M{"expiresAt": bson.M{"$lte": now}},
		},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"entityType": entityType,
			"entityId":   entityID,
			"acquiredAt": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$holder", holder}}, "$acquiredAt", now}},
			"holder":     holder,
			"expiresAt":  now.Add(ttl),
		}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc lockDocument
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return &doc.Lock, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	current, statusErr := m.Status(ctx, entityType, entityID)
	if statusErr != nil {
		return nil, statusErr
	}
	if current == nil {
		return nil, &ConflictError{EntityType: entityType, EntityID: entityID, ExpiresAt: now}
	}
	return nil, &ConflictError{EntityType: entityType, EntityID: entityID, Holder: current.Holder, ExpiresAt: current.ExpiresAt}
}

func (m *MongoLocker) Release(ctx context.Context, entityType, entityID, holder string) error {
	key := Key(entityType, entityID)

	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": key, "holder": holder})
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if res.DeletedCount == 1 {
		return nil
	}

	current, err := m.Status(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	if current != nil && current.Holder != holder {
		return ErrNotHolder
	}
	return nil
}

func (m *MongoLocker) Status(ctx context.Context, entityType, entityID string) (*Lock, error) {
	filter := bson.M{
		"_id":       Key(entityType, entityID),
		"expiresAt": bson.M{"$gt": m.now().UTC()},
	}

	var doc lockDocument
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}
	return &doc.Lock, nil
}

func (m *MongoLocker) ReleaseAllForHolder(ctx context.Context, holder string) (int, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"holder": holder})
	if err != nil {
		return 0, fmt.Errorf("failed to release locks of %s: %w", holder, err)
	}
	return int(res.DeletedCount), nil
}

func (m *MongoLocker) CleanupExpired(ctx context.Context) (int, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": m.now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired locks: %w", err)
	}
	return int(res.DeletedCount), nil
}

// EnsureIndexes creates the holder and expiry indexes
func (m *MongoLocker) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "holder", Value: 1}},
			Options: options.Index().SetName("idx_holder"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("idx_expiresAt"),
		},
	}
	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	return err
}
