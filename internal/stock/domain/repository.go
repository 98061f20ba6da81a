package domain

import (
	"context"
)

// FindByID methods return ErrMaterialNotFound, ErrBatchNotFound or
// ErrReservationNotFound when nothing matches.

// MaterialRepository stores materials
type MaterialRepository interface {
	Save(ctx context.Context, m *Material) error
	FindByID(ctx context.Context, id string) (*Material, error)
	// FindByCategory matches the category case-insensitively
	FindByCategory(ctx context.Context, category string) ([]*Material, error)
	FindAll(ctx context.Context) ([]*Material, error)
}

// BatchRepository stores material batches
type BatchRepository interface {
	Save(ctx context.Context, b *MaterialBatch) error
	FindByID(ctx context.Context, id string) (*MaterialBatch, error)
	FindByMaterial(ctx context.Context, materialID string) ([]*MaterialBatch, error)
}

// ReservationRepository stores reservations
type ReservationRepository interface {
	SaveAll(ctx context.Context, reservations []*Reservation) error
	Save(ctx context.Context, r *Reservation) error
	FindByID(ctx context.Context, id string) (*Reservation, error)
	FindByOrder(ctx context.Context, orderID string) ([]*Reservation, error)
	FindUnconsumedByMaterial(ctx context.Context, materialID string) ([]*Reservation, error)
	FindByBatch(ctx context.Context, batchID string) ([]*Reservation, error)
	Delete(ctx context.Context, id string) error
}

// MovementRepository is the append-only stock ledger
type MovementRepository interface {
	Append(ctx context.Context, movements ...*StockMovement) error
	FindByBatch(ctx context.Context, batchID string) ([]*StockMovement, error)
}

// Transactor runs fn so that every repository call made with the ctx it
// receives commits or fails together
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
