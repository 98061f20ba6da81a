// Package mongodb persists the stock ledger in MongoDB
package mongodb

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marimovDEV/tipografiya/internal/stock/domain"
	"github.com/marimovDEV/tipografiya/pkg/mongodb"
)

// Collection names
const (
	MaterialsCollection    = "materials"
	BatchesCollection      = "material_batches"
	ReservationsCollection = "stock_reservations"
	MovementsCollection    = "stock_movements"
)

// MaterialRepository is a MongoDB domain.MaterialRepository
type MaterialRepository struct {
	collection *mongo.Collection
}

func NewMaterialRepository(db *mongo.Database) *MaterialRepository {
	return &MaterialRepository{collection: db.Collection(MaterialsCollection)}
}

func (r *MaterialRepository) Save(ctx context.Context, m *domain.Material) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts); err != nil {
		return fmt.Errorf("failed to save material: %w", err)
	}
	return nil
}

func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*domain.Material, error) {
	var m domain.Material
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrMaterialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find material: %w", err)
	}
	return &m, nil
}

func (r *MaterialRepository) FindByCategory(ctx context.Context, category string) ([]*domain.Material, error) {
	filter := bson.M{"category": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(category) + "$", Options: "i"}}
	return r.find(ctx, filter)
}

func (r *MaterialRepository) FindAll(ctx context.Context) ([]*domain.Material, error) {
	return r.find(ctx, bson.M{})
}

func (r *MaterialRepository) find(ctx context.Context, filter bson.M) ([]*domain.Material, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find materials: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Material
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode materials: %w", err)
	}
	return out, nil
}

// BatchRepository is a MongoDB domain.BatchRepository
type BatchRepository struct {
	collection *mongo.Collection
}

func NewBatchRepository(db *mongo.Database) *BatchRepository {
	return &BatchRepository{collection: db.Collection(BatchesCollection)}
}

func (r *BatchRepository) Save(ctx context.Context, b *domain.MaterialBatch) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": b.ID}, toBatchDocument(b), opts); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) FindByID(ctx context.Context, id string) (*domain.MaterialBatch, error) {
	var doc batchDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find batch: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *BatchRepository) FindByMaterial(ctx context.Context, materialID string) ([]*domain.MaterialBatch, error) {
	opts := options.Find().SetSort(mongodb.SortMultiple(
		mongodb.SortField{Field: "receivedAt"},
		mongodb.SortField{Field: "batchNumber"},
	))
	cursor, err := r.collection.Find(ctx, bson.M{"materialId": materialID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find batches: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []batchDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode batches: %w", err)
	}
	out := make([]*domain.MaterialBatch, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// ReservationRepository is a MongoDB domain.ReservationRepository
type ReservationRepository struct {
	collection *mongo.Collection
}

func NewReservationRepository(db *mongo.Database) *ReservationRepository {
	return &ReservationRepository{collection: db.Collection(ReservationsCollection)}
}

func (r *ReservationRepository) SaveAll(ctx context.Context, reservations []*domain.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(reservations))
	for _, res := range reservations {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": res.ID}).
			SetReplacement(toReservationDocument(res)).
			SetUpsert(true))
	}
	if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to save reservations: %w", err)
	}
	return nil
}

func (r *ReservationRepository) Save(ctx context.Context, res *domain.Reservation) error {
	return r.SaveAll(ctx, []*domain.Reservation{res})
}

func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var doc reservationDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ReservationRepository) find(ctx context.Context, filter bson.M) ([]*domain.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []reservationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}
	out := make([]*domain.Reservation, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (r *ReservationRepository) FindByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	return r.find(ctx, bson.M{"orderId": orderID})
}

func (r *ReservationRepository) FindUnconsumedByMaterial(ctx context.Context, materialID string) ([]*domain.Reservation, error) {
	return r.find(ctx, bson.M{"materialId": materialID, "consumed": false})
}

func (r *ReservationRepository) FindByBatch(ctx context.Context, batchID string) ([]*domain.Reservation, error) {
	return r.find(ctx, bson.M{"batchId": batchID})
}

func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

// MovementRepository is the MongoDB stock ledger
type MovementRepository struct {
	collection *mongo.Collection
}

func NewMovementRepository(db *mongo.Database) *MovementRepository {
	return &MovementRepository{collection: db.Collection(MovementsCollection)}
}

func (r *MovementRepository) Append(ctx context.Context, movements ...*domain.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(movements))
	for _, m := range movements {
		docs = append(docs, toMovementDocument(m))
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append movements: %w", err)
	}
	return nil
}

func (r *MovementRepository) FindByBatch(ctx context.Context, batchID string) ([]*domain.StockMovement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"batchId": batchID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find movements: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []movementDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode movements: %w", err)
	}
	out := make([]*domain.StockMovement, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// EnsureIndexes creates the ledger indexes
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		MaterialsCollection: {
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		BatchesCollection: {
			{Keys: bson.D{{Key: "materialId", Value: 1}, {Key: "receivedAt", Value: 1}, {Key: "batchNumber", Value: 1}}},
		},
		ReservationsCollection: {
			{Keys: bson.D{{Key: "materialId", Value: 1}, {Key: "consumed", Value: 1}}},
			{Keys: bson.D{{Key: "orderId", Value: 1}}},
			{Keys: bson.D{{Key: "batchId", Value: 1}}},
		},
		MovementsCollection: {
			{Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{
				Keys:    bson.D{{Key: "reservationId", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"kind": string(domain.MovementConsumption)}),
			},
		},
	}
	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}
