package cloudevents

import (
	"time"
)

// Event types emitted by the planning engine
const (
	BatchReceived          = "tipografiya.stock.batch-received"
	BatchQualityChanged    = "tipografiya.stock.batch-quality-changed"
	StockReserved          = "tipografiya.stock.reserved"
	ReservationConsumed    = "tipografiya.stock.reservation-consumed"
	ReservationReleased    = "tipografiya.stock.reservation-released"
	StepScheduled          = "tipografiya.production.step-scheduled"
	StepAssigned           = "tipografiya.production.step-assigned"
	StepStarted            = "tipografiya.production.step-started"
	StepCompleted          = "tipografiya.production.step-completed"
	MachineQueueOptimized  = "tipografiya.production.queue-optimized"
	MachineDowntimeChanged = "tipografiya.production.machine-downtime-changed"
)

// Event sources
const (
	SourceStockLedger = "/tipografiya/planning/stock"
	SourceScheduler   = "/tipografiya/planning/scheduler"
)

// PlanningEvent is a CloudEvents v1.0 envelope with planning extensions
type PlanningEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype,omitempty"`
	Data            interface{} `json:"data,omitempty"`

	// Extensions
	CorrelationID string `json:"tipcorrelationid,omitempty"`
	OrderID       string `json:"tiporderid,omitempty"`
	MachineID     string `json:"tipmachineid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
}
