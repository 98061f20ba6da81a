package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialDTO represents a material for API responses
type MaterialDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
}

// BatchDTO represents a material batch for API responses
type BatchDTO struct {
	ID              string          `json:"id"`
	MaterialID      string          `json:"materialId"`
	BatchNumber     string          `json:"batchNumber"`
	SupplierID      string          `json:"supplierId,omitempty"`
	InitialQuantity decimal.Decimal `json:"initialQuantity"`
	CurrentQuantity decimal.Decimal `json:"currentQuantity"`
	CostPerUnit     decimal.Decimal `json:"costPerUnit"`
	ReceivedAt      time.Time       `json:"receivedAt"`
	QualityStatus   string          `json:"qualityStatus"`
	IsActive        bool            `json:"isActive"`
}

// ReservationDTO represents a reservation for API responses
type ReservationDTO struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	BatchID     string          `json:"batchId"`
	MaterialID  string          `json:"materialId"`
	ReservedQty decimal.Decimal `json:"reservedQty"`
	Consumed    bool            `json:"consumed"`
	ConsumedAt  *time.Time      `json:"consumedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// CostAttributionDTO is the cost of goods of a consumed reservation
type CostAttributionDTO struct {
	ReservationID string          `json:"reservationId"`
	OrderID       string          `json:"orderId"`
	BatchID       string          `json:"batchId"`
	MaterialID    string          `json:"materialId"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	ConsumedAt    time.Time       `json:"consumedAt"`
}

// BatchAvailabilityDTO is one line of an availability breakdown
type BatchAvailabilityDTO struct {
	BatchID     string          `json:"batchId"`
	MaterialID  string          `json:"materialId"`
	BatchNumber string          `json:"batchNumber"`
	Free        decimal.Decimal `json:"free"`
	CostPerUnit decimal.Decimal `json:"costPerUnit"`
	ReceivedAt  time.Time       `json:"receivedAt"`
}

// AvailabilityDTO answers a CheckAvailabilityQuery
type AvailabilityDTO struct {
	Category       string                 `json:"category"`
	Requested      decimal.Decimal        `json:"requested"`
	Available      bool                   `json:"available"`
	TotalAvailable decimal.Decimal        `json:"totalAvailable"`
	Batches        []BatchAvailabilityDTO `json:"batches"`
}

// MaterialAvailabilityDTO is a material suggested as a substitute
type MaterialAvailabilityDTO struct {
	MaterialID string          `json:"materialId"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Free       decimal.Decimal `json:"free"`
}

// ReleaseOrderResultDTO summarizes an order cancellation
type ReleaseOrderResultDTO struct {
	OrderID  string `json:"orderId"`
	Released int    `json:"released"`
	Consumed int    `json:"consumed"`
}

// ReconciliationDTO compares a batch against its ledger
type ReconciliationDTO struct {
	BatchID              string          `json:"batchId"`
	Initial              decimal.Decimal `json:"initial"`
	Current              decimal.Decimal `json:"current"`
	Received             decimal.Decimal `json:"received"`
	ConsumedMovements    decimal.Decimal `json:"consumedMovements"`
	ConsumedReservations decimal.Decimal `json:"consumedReservations"`
	Balanced             bool            `json:"balanced"`
}
