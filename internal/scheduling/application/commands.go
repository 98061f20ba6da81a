package application

import (
	"time"

	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
)

// ScheduleOrderCommand materializes the production steps of an order.
// Sheets comes from the layout result and drives per-sheet routing entries.
type ScheduleOrderCommand struct {
	OrderID    string
	Quantity   int
	Sheets     int
	Priority   int // zero means the default priority
	Deadline   *time.Time
	TemplateID string
}

// RegisterMachineCommand creates or updates a machine
type RegisterMachineCommand struct {
	ID             string
	Name           string
	Type           string
	HourlyRate     float64
	SetupMinutes   float64
	MinutesPerUnit float64
	IsActive       *bool // nil means active
}

// RegisterTemplateCommand creates or updates a product template
type RegisterTemplateCommand struct {
	ID      string
	Name    string
	Routing []domain.RoutingEntry
}

// ReportDowntimeCommand opens a downtime window on a machine
type ReportDowntimeCommand struct {
	MachineID   string
	Reason      string
	ExpectedEnd *time.Time
}
