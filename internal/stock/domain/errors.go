package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Stock ledger errors
var (
	// ErrInsufficientStock is matched by every *InsufficientStockError
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDoubleConsumption is returned when a reservation is consumed twice
	ErrDoubleConsumption = errors.New("reservation already consumed")

	// ErrReservationConsumed is returned when releasing a consumed reservation
	ErrReservationConsumed = errors.New("consumed reservation cannot be released")

	// ErrLedgerInvariant is an internal consistency violation, e.g. a
	// decrement that would leave a batch negative
	ErrLedgerInvariant = errors.New("stock ledger invariant violated")

	ErrMaterialNotFound    = errors.New("material not found")
	ErrBatchNotFound       = errors.New("batch not found")
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInvalidQuantity is returned for non-positive quantities
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidQualityStatus is returned for an unknown quality status
	ErrInvalidQualityStatus = errors.New("invalid quality status")
)

// InsufficientStockError carries the shortfall of a failed reservation
type InsufficientStockError struct {
	MaterialID string
	Requested  decimal.Decimal
	Available  decimal.Decimal
	Shortfall  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for material %s: requested %s, available %s, shortfall %s",
		e.MaterialID, e.Requested, e.Available, e.Shortfall)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
