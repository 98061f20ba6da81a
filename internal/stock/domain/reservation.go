package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reservation is a provisional claim of an order on part of one batch
type Reservation struct {
	ID          string
	OrderID     string
	BatchID     string
	MaterialID  string
	ReservedQty decimal.Decimal
	Consumed    bool
	ConsumedAt  *time.Time
	CreatedAt   time.Time
}

// NewReservation creates an unconsumed reservation
func NewReservation(orderID, materialID, batchID string, qty decimal.Decimal, now time.Time) *Reservation {
	return &Reservation{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		BatchID:     batchID,
		MaterialID:  materialID,
		ReservedQty: qty,
		CreatedAt:   now,
	}
}

// MarkConsumed freezes the reservation
func (r *Reservation) MarkConsumed(now time.Time) error {
	if r.Consumed {
		return ErrDoubleConsumption
	}
	r.Consumed = true
	r.ConsumedAt = &now
	return nil
}

// CanRelease reports whether the reservation may still be released
func (r *Reservation) CanRelease() error {
	if r.Consumed {
		return ErrReservationConsumed
	}
	return nil
}

// MovementKind classifies a ledger line
type MovementKind string

const (
	MovementReceipt     MovementKind = "receipt"
	MovementConsumption MovementKind = "consumption"
)

// StockMovement is the only record of a change to a batch's current quantity
type StockMovement struct {
	ID            string
	BatchID       string
	MaterialID    string
	ReservationID string
	OrderID       string
	Kind          MovementKind
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	CreatedAt     time.Time
}

// NewReceiptMovement records stock entering through a new batch
func NewReceiptMovement(b *MaterialBatch) *StockMovement {
	return &StockMovement{
		ID:         uuid.NewString(),
		BatchID:    b.ID,
		MaterialID: b.MaterialID,
		Kind:       MovementReceipt,
		Quantity:   b.InitialQuantity,
		UnitCost:   b.CostPerUnit,
		CreatedAt:  b.ReceivedAt,
	}
}

// NewConsumptionMovement records a reservation leaving its batch
func NewConsumptionMovement(r *Reservation, unitCost decimal.Decimal, now time.Time) *StockMovement {
	return &StockMovement{
		ID:            uuid.NewString(),
		BatchID:       r.BatchID,
		MaterialID:    r.MaterialID,
		ReservationID: r.ID,
		OrderID:       r.OrderID,
		Kind:          MovementConsumption,
		Quantity:      r.ReservedQty,
		UnitCost:      unitCost,
		CreatedAt:     now,
	}
}

// CostAttribution is the cost of goods of one consumed reservation
type CostAttribution struct {
	ReservationID string
	OrderID       string
	BatchID       string
	MaterialID    string
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	TotalCost     decimal.Decimal
	ConsumedAt    time.Time
}

// NewCostAttribution prices a consumed reservation at its batch cost
func NewCostAttribution(r *Reservation, unitCost decimal.Decimal, at time.Time) *CostAttribution {
	return &CostAttribution{
		ReservationID: r.ID,
		OrderID:       r.OrderID,
		BatchID:       r.BatchID,
		MaterialID:    r.MaterialID,
		Quantity:      r.ReservedQty,
		UnitCost:      unitCost,
		TotalCost:     r.ReservedQty.Mul(unitCost),
		ConsumedAt:    at,
	}
}
