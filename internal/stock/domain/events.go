package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
)

// BatchReceivedEvent is emitted when stock enters through a new batch
type BatchReceivedEvent struct {
	BatchID     string          `json:"batchId"`
	MaterialID  string          `json:"materialId"`
	BatchNumber string          `json:"batchNumber"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"costPerUnit"`
	ReceivedAt  time.Time       `json:"receivedAt"`
}

func (e *BatchReceivedEvent) EventType() string   { return cloudevents.BatchReceived }
func (e *BatchReceivedEvent) AggregateID() string { return e.BatchID }

// BatchQualityChangedEvent is emitted when a batch is blocked or released
type BatchQualityChangedEvent struct {
	BatchID    string        `json:"batchId"`
	MaterialID string        `json:"materialId"`
	From       QualityStatus `json:"from"`
	To         QualityStatus `json:"to"`
	ChangedAt  time.Time     `json:"changedAt"`
}

func (e *BatchQualityChangedEvent) EventType() string   { return cloudevents.BatchQualityChanged }
func (e *BatchQualityChangedEvent) AggregateID() string { return e.BatchID }

// StockReservedEvent is emitted per reservation created
type StockReservedEvent struct {
	ReservationID string          `json:"reservationId"`
	OrderID       string          `json:"orderId"`
	BatchID       string          `json:"batchId"`
	MaterialID    string          `json:"materialId"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReservedAt    time.Time       `json:"reservedAt"`
}

func (e *StockReservedEvent) EventType() string   { return cloudevents.StockReserved }
func (e *StockReservedEvent) AggregateID() string { return e.BatchID }
func (e *StockReservedEvent) OrderRef() string    { return e.OrderID }

// ReservationConsumedEvent carries the cost attribution of a consumption
type ReservationConsumedEvent struct {
	ReservationID string          `json:"reservationId"`
	OrderID       string          `json:"orderId"`
	BatchID       string          `json:"batchId"`
	MaterialID    string          `json:"materialId"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	BatchEmptied  bool            `json:"batchEmptied"`
	ConsumedAt    time.Time       `json:"consumedAt"`
}

func (e *ReservationConsumedEvent) EventType() string   { return cloudevents.ReservationConsumed }
func (e *ReservationConsumedEvent) AggregateID() string { return e.BatchID }
func (e *ReservationConsumedEvent) OrderRef() string    { return e.OrderID }

// ReservationReleasedEvent is emitted when a reservation is given back
type ReservationReleasedEvent struct {
	ReservationID string          `json:"reservationId"`
	OrderID       string          `json:"orderId"`
	BatchID       string          `json:"batchId"`
	MaterialID    string          `json:"materialId"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReleasedAt    time.Time       `json:"releasedAt"`
}

func (e *ReservationReleasedEvent) EventType() string   { return cloudevents.ReservationReleased }
func (e *ReservationReleasedEvent) AggregateID() string { return e.BatchID }
func (e *ReservationReleasedEvent) OrderRef() string    { return e.OrderID }
