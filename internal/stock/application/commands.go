package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateMaterialCommand registers a material
type CreateMaterialCommand struct {
	ID       string
	Name     string
	Category string
	Unit     string
}

// ReceiveBatchCommand brings new stock in as a batch
type ReceiveBatchCommand struct {
	MaterialID  string
	BatchNumber string
	SupplierID  string
	Quantity    decimal.Decimal
	CostPerUnit decimal.Decimal
	ReceivedAt  time.Time // zero means now
}

// ReserveCommand claims stock of one material for an order
type ReserveCommand struct {
	OrderID    string
	MaterialID string
	Quantity   decimal.Decimal
}

// ConsumeCommand turns a reservation into a permanent deduction
type ConsumeCommand struct {
	ReservationID string
}

// ReleaseCommand gives back an unconsumed reservation
type ReleaseCommand struct {
	ReservationID string
}

// ReleaseOrderCommand gives back every unconsumed reservation of an order
type ReleaseOrderCommand struct {
	OrderID string
}

// SetQualityStatusCommand blocks or unblocks a batch for allocation
type SetQualityStatusCommand struct {
	BatchID string
	Status  string
}

// CheckAvailabilityQuery asks whether a category can cover a quantity
type CheckAvailabilityQuery struct {
	Category string
	Quantity decimal.Decimal
}

// SuggestAlternativesQuery looks for materials of a category that can cover
// a quantity on their own
type SuggestAlternativesQuery struct {
	Category          string
	Quantity          decimal.Decimal
	ExcludeMaterialID string
}

// ReconcileQuery checks the ledger of one batch
type ReconcileQuery struct {
	BatchID string
}
