package mongodb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/marimovDEV/tipografiya/internal/stock/domain"
)

// Quantities and money are stored as Decimal128 so they stay exact in
// aggregation pipelines.

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	out, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// decimal.String never produces an unparsable value
		panic(fmt.Sprintf("decimal %s not representable as Decimal128: %v", d, err))
	}
	return out
}

func fromDecimal128(d primitive.Decimal128) decimal.Decimal {
	out, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Zero
	}
	return out
}

type batchDocument struct {
	ID              string               `bson:"_id"`
	MaterialID      string               `bson:"materialId"`
	BatchNumber     string               `bson:"batchNumber"`
	SupplierID      string               `bson:"supplierId,omitempty"`
	InitialQuantity primitive.Decimal128 `bson:"initialQuantity"`
	CurrentQuantity primitive.Decimal128 `bson:"currentQuantity"`
	CostPerUnit     primitive.Decimal128 `bson:"costPerUnit"`
	ReceivedAt      time.Time            `bson:"receivedAt"`
	QualityStatus   string               `bson:"qualityStatus"`
	IsActive        bool                 `bson:"isActive"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

func toBatchDocument(b *domain.MaterialBatch) *batchDocument {
	return &batchDocument{
		ID:              b.ID,
		MaterialID:      b.MaterialID,
		BatchNumber:     b.BatchNumber,
		SupplierID:      b.SupplierID,
		InitialQuantity: toDecimal128(b.InitialQuantity),
		CurrentQuantity: toDecimal128(b.CurrentQuantity),
		CostPerUnit:     toDecimal128(b.CostPerUnit),
		ReceivedAt:      b.ReceivedAt,
		QualityStatus:   string(b.QualityStatus),
		IsActive:        b.IsActive,
		UpdatedAt:       b.UpdatedAt,
	}
}

func (d *batchDocument) toDomain() *domain.MaterialBatch {
	return &domain.MaterialBatch{
		ID:              d.ID,
		MaterialID:      d.MaterialID,
		BatchNumber:     d.BatchNumber,
		SupplierID:      d.SupplierID,
		InitialQuantity: fromDecimal128(d.InitialQuantity),
		CurrentQuantity: fromDecimal128(d.CurrentQuantity),
		CostPerUnit:     fromDecimal128(d.CostPerUnit),
		ReceivedAt:      d.ReceivedAt,
		QualityStatus:   domain.QualityStatus(d.QualityStatus),
		IsActive:        d.IsActive,
		UpdatedAt:       d.UpdatedAt,
	}
}

type reservationDocument struct {
	ID          string               `bson:"_id"`
	OrderID     string               `bson:"orderId"`
	BatchID     string               `bson:"batchId"`
	MaterialID  string               `bson:"materialId"`
	ReservedQty primitive.Decimal128 `bson:"reservedQty"`
	Consumed    bool                 `bson:"consumed"`
	ConsumedAt  *time.Time           `bson:"consumedAt,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt"`
}

func toReservationDocument(r *domain.Reservation) *reservationDocument {
	return &reservationDocument{
		ID:          r.ID,
		OrderID:     r.OrderID,
		BatchID:     r.BatchID,
		MaterialID:  r.MaterialID,
		ReservedQty: toDecimal128(r.ReservedQty),
		Consumed:    r.Consumed,
		ConsumedAt:  r.ConsumedAt,
		CreatedAt:   r.CreatedAt,
	}
}

func (d *reservationDocument) toDomain() *domain.Reservation {
	return &domain.Reservation{
		ID:          d.ID,
		OrderID:     d.OrderID,
		BatchID:     d.BatchID,
		MaterialID:  d.MaterialID,
		ReservedQty: fromDecimal128(d.ReservedQty),
		Consumed:    d.Consumed,
		ConsumedAt:  d.ConsumedAt,
		CreatedAt:   d.CreatedAt,
	}
}

type movementDocument struct {
	ID            string               `bson:"_id"`
	BatchID       string               `bson:"batchId"`
	MaterialID    string               `bson:"materialId"`
	ReservationID string               `bson:"reservationId,omitempty"`
	OrderID       string               `bson:"orderId,omitempty"`
	Kind          string               `bson:"kind"`
	Quantity      primitive.Decimal128 `bson:"quantity"`
	UnitCost      primitive.Decimal128 `bson:"unitCost"`
	CreatedAt     time.Time            `bson:"createdAt"`
}

func toMovementDocument(m *domain.StockMovement) *movementDocument {
	return &movementDocument{
		ID:            m.ID,
		BatchID:       m.BatchID,
		MaterialID:    m.MaterialID,
		ReservationID: m.ReservationID,
		OrderID:       m.OrderID,
		Kind:          string(m.Kind),
		Quantity:      toDecimal128(m.Quantity),
		UnitCost:      toDecimal128(m.UnitCost),
		CreatedAt:     m.CreatedAt,
	}
}

func (d *movementDocument) toDomain() *domain.StockMovement {
	return &domain.StockMovement{
		ID:            d.ID,
		BatchID:       d.BatchID,
		MaterialID:    d.MaterialID,
		ReservationID: d.ReservationID,
		OrderID:       d.OrderID,
		Kind:          domain.MovementKind(d.Kind),
		Quantity:      fromDecimal128(d.Quantity),
		UnitCost:      fromDecimal128(d.UnitCost),
		CreatedAt:     d.CreatedAt,
	}
}
