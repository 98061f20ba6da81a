package domain

import (
	"time"
)

// Order is the scheduling view of a customer order
type Order struct {
	ID         string     `bson:"_id" json:"id"`
	Quantity   int        `bson:"quantity" json:"quantity"`
	Sheets     int        `bson:"sheets" json:"sheets"`
	Priority   int        `bson:"priority" json:"priority"`
	Deadline   *time.Time `bson:"deadline,omitempty" json:"deadline,omitempty"`
	TemplateID string     `bson:"templateId,omitempty" json:"templateId,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
}

// DeadlineOr returns the deadline, or fallback when the order has none
func (o *Order) DeadlineOr(fallback time.Time) time.Time {
	if o == nil || o.Deadline == nil {
		return fallback
	}
	return *o.Deadline
}

// RoutingEntry is one step kind of a product routing with its time norm
type RoutingEntry struct {
	Kind           string  `bson:"kind" json:"kind"`
	MachineType    string  `bson:"machineType,omitempty" json:"machineType,omitempty"`
	MinutesPerUnit float64 `bson:"minutesPerUnit" json:"minutesPerUnit"`
	SetupMinutes   float64 `bson:"setupMinutes" json:"setupMinutes"`
	PerSheet       bool    `bson:"perSheet" json:"perSheet"`
}

// Duration estimates minutes for units, or false when the entry carries no
// norm
func (e *RoutingEntry) Duration(units int) (float64, bool) {
	if e == nil || (e.MinutesPerUnit <= 0 && e.SetupMinutes <= 0) {
		return 0, false
	}
	return e.MinutesPerUnit*float64(units) + e.SetupMinutes, true
}

// ProductTemplate carries the routing of a product
type ProductTemplate struct {
	ID      string         `bson:"_id" json:"id"`
	Name    string         `bson:"name" json:"name"`
	Routing []RoutingEntry `bson:"routing" json:"routing"`
}

// Entry returns the routing entry for a step kind
func (t *ProductTemplate) Entry(kind string) *RoutingEntry {
	if t == nil {
		return nil
	}
	for i := range t.Routing {
		if t.Routing[i].Kind == kind {
			return &t.Routing[i]
		}
	}
	return nil
}
