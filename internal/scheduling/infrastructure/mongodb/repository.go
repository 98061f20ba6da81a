// Package mongodb persists machine queues and production steps in MongoDB
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
	"github.com/marimovDEV/tipografiya/pkg/mongodb"
)

// Collection names
const (
	StepsCollection     = "production_steps"
	MachinesCollection  = "machines"
	DowntimesCollection = "machine_downtimes"
	OrdersCollection    = "scheduling_orders"
	TemplatesCollection = "product_templates"
)

var queueSort = mongodb.SortMultiple(
	mongodb.SortField{Field: "queuePosition"},
	mongodb.SortField{Field: "priority"},
	mongodb.SortField{Field: "estimatedStart"},
	mongodb.SortField{Field: "createdAt"},
)

// StepRepository is a MongoDB domain.StepRepository
type StepRepository struct {
	collection *mongo.Collection
}

func NewStepRepository(db *mongo.Database) *StepRepository {
	return &StepRepository{collection: db.Collection(StepsCollection)}
}

func (r *StepRepository) Save(ctx context.Context, s *domain.ProductionStep) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": s.ID}, s, opts); err != nil {
		return fmt.Errorf("failed to save production step: %w", err)
	}
	return nil
}

func (r *StepRepository) SaveAll(ctx context.Context, steps []*domain.ProductionStep) error {
	if len(steps) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(steps))
	for _, s := range steps {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": s.ID}).
			SetReplacement(s).
			SetUpsert(true))
	}
	if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to save production steps: %w", err)
	}
	return nil
}

func (r *StepRepository) FindByID(ctx context.Context, id string) (*domain.ProductionStep, error) {
	var s domain.ProductionStep
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrStepNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find production step: %w", err)
	}
	return &s, nil
}

func (r *StepRepository) FindByOrder(ctx context.Context, orderID string) ([]*domain.ProductionStep, error) {
	return r.find(ctx, bson.M{"orderId": orderID}, bson.D{{Key: "sequence", Value: 1}})
}

func (r *StepRepository) FindByMachine(ctx context.Context, machineID string, statuses ...domain.StepStatus) ([]*domain.ProductionStep, error) {
	filter := bson.M{"machineId": machineID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return r.find(ctx, filter, queueSort)
}

func (r *StepRepository) FindDependents(ctx context.Context, stepID string) ([]*domain.ProductionStep, error) {
	return r.find(ctx, bson.M{"dependsOn": stepID}, bson.D{{Key: "createdAt", Value: 1}})
}

func (r *StepRepository) FindByStatus(ctx context.Context, statuses ...domain.StepStatus) ([]*domain.ProductionStep, error) {
	filter := bson.M{}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return r.find(ctx, filter, bson.D{{Key: "createdAt", Value: 1}})
}

func (r *StepRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]*domain.ProductionStep, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("failed to find production steps: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.ProductionStep
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode production steps: %w", err)
	}
	return out, nil
}

// MachineRepository is a MongoDB domain.MachineRepository
type MachineRepository struct {
	collection *mongo.Collection
}

func NewMachineRepository(db *mongo.Database) *MachineRepository {
	return &MachineRepository{collection: db.Collection(MachinesCollection)}
}

func (r *MachineRepository) Save(ctx context.Context, m *domain.Machine) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts); err != nil {
		return fmt.Errorf("failed to save machine: %w", err)
	}
	return nil
}

func (r *MachineRepository) FindByID(ctx context.Context, id string) (*domain.Machine, error) {
	var m domain.Machine
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrMachineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find machine: %w", err)
	}
	return &m, nil
}

func (r *MachineRepository) FindAll(ctx context.Context) ([]*domain.Machine, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find machines: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.Machine
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode machines: %w", err)
	}
	return out, nil
}

// DowntimeRepository is a MongoDB domain.DowntimeRepository
type DowntimeRepository struct {
	collection *mongo.Collection
}

func NewDowntimeRepository(db *mongo.Database) *DowntimeRepository {
	return &DowntimeRepository{collection: db.Collection(DowntimesCollection)}
}

func (r *DowntimeRepository) Save(ctx context.Context, d *domain.MachineDowntime) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": d.ID}, d, opts); err != nil {
		return fmt.Errorf("failed to save machine downtime: %w", err)
	}
	return nil
}

func (r *DowntimeRepository) FindByID(ctx context.Context, id string) (*domain.MachineDowntime, error) {
	var d domain.MachineDowntime
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrDowntimeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find machine downtime: %w", err)
	}
	return &d, nil
}

func (r *DowntimeRepository) FindUnresolved(ctx context.Context, machineID string) ([]*domain.MachineDowntime, error) {
	filter := bson.M{"machineId": machineID, "resolved": false}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startedAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find machine downtimes: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.MachineDowntime
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode machine downtimes: %w", err)
	}
	return out, nil
}

// OrderRepository is a MongoDB domain.OrderRepository
type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{collection: db.Collection(OrdersCollection)}
}

func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": o.ID}, o, opts); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &o, nil
}

// TemplateRepository is a MongoDB domain.TemplateRepository
type TemplateRepository struct {
	collection *mongo.Collection
}

func NewTemplateRepository(db *mongo.Database) *TemplateRepository {
	return &TemplateRepository{collection: db.Collection(TemplatesCollection)}
}

func (r *TemplateRepository) Save(ctx context.Context, t *domain.ProductTemplate) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": t.ID}, t, opts); err != nil {
		return fmt.Errorf("failed to save product template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*domain.ProductTemplate, error) {
	var t domain.ProductTemplate
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if mongodb.IsNotFound(err) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product template: %w", err)
	}
	return &t, nil
}

// EnsureIndexes creates the indexes the scheduling queries rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	steps := []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "sequence", Value: 1}}},
		{Keys: bson.D{{Key: "machineId", Value: 1}, {Key: "status", Value: 1}, {Key: "queuePosition", Value: 1}}},
		{Keys: bson.D{{Key: "dependsOn", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := db.Collection(StepsCollection).Indexes().CreateMany(ctx, steps); err != nil {
		return fmt.Errorf("failed to create production step indexes: %w", err)
	}

	downtimes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "machineId", Value: 1}, {Key: "resolved", Value: 1}}},
	}
	if _, err := db.Collection(DowntimesCollection).Indexes().CreateMany(ctx, downtimes); err != nil {
		return fmt.Errorf("failed to create machine downtime indexes: %w", err)
	}
	return nil
}
