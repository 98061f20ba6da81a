package domain

import (
	"time"

	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
)

// StepScheduledEvent is emitted when an order's steps are materialized
type StepScheduledEvent struct {
	StepID    string `json:"stepId"`
	OrderID   string `json:"orderId"`
	Kind      string `json:"kind"`
	DependsOn string `json:"dependsOn,omitempty"`
	MachineID string `json:"machineId,omitempty"`
}

func (e *StepScheduledEvent) EventType() string   { return cloudevents.StepScheduled }
func (e *StepScheduledEvent) AggregateID() string { return e.StepID }
func (e *StepScheduledEvent) OrderRef() string    { return e.OrderID }
func (e *StepScheduledEvent) MachineRef() string  { return e.MachineID }

// StepAssignedEvent is emitted when a step joins a machine queue
type StepAssignedEvent struct {
	StepID         string     `json:"stepId"`
	OrderID        string     `json:"orderId"`
	MachineID      string     `json:"machineId"`
	QueuePosition  int        `json:"queuePosition"`
	EstimatedStart *time.Time `json:"estimatedStart,omitempty"`
	EstimatedEnd   *time.Time `json:"estimatedEnd,omitempty"`
}

func (e *StepAssignedEvent) EventType() string   { return cloudevents.StepAssigned }
func (e *StepAssignedEvent) AggregateID() string { return e.StepID }
func (e *StepAssignedEvent) OrderRef() string    { return e.OrderID }
func (e *StepAssignedEvent) MachineRef() string  { return e.MachineID }

// StepStartedEvent is emitted when work on a step begins
type StepStartedEvent struct {
	StepID    string    `json:"stepId"`
	OrderID   string    `json:"orderId"`
	MachineID string    `json:"machineId,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

func (e *StepStartedEvent) EventType() string   { return cloudevents.StepStarted }
func (e *StepStartedEvent) AggregateID() string { return e.StepID }
func (e *StepStartedEvent) OrderRef() string    { return e.OrderID }
func (e *StepStartedEvent) MachineRef() string  { return e.MachineID }

// StepCompletedEvent is emitted when a step finishes
type StepCompletedEvent struct {
	StepID      string    `json:"stepId"`
	OrderID     string    `json:"orderId"`
	MachineID   string    `json:"machineId,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
	Minutes     float64   `json:"actualMinutes"`
}

func (e *StepCompletedEvent) EventType() string   { return cloudevents.StepCompleted }
func (e *StepCompletedEvent) AggregateID() string { return e.StepID }
func (e *StepCompletedEvent) OrderRef() string    { return e.OrderID }
func (e *StepCompletedEvent) MachineRef() string  { return e.MachineID }

// QueueOptimizedEvent is emitted after a machine queue is reordered
type QueueOptimizedEvent struct {
	MachineID string   `json:"machineId"`
	StepIDs   []string `json:"stepIds"`
}

func (e *QueueOptimizedEvent) EventType() string   { return cloudevents.MachineQueueOptimized }
func (e *QueueOptimizedEvent) AggregateID() string { return e.MachineID }
func (e *QueueOptimizedEvent) MachineRef() string  { return e.MachineID }

// DowntimeChangedEvent is emitted when downtime is reported or resolved
type DowntimeChangedEvent struct {
	DowntimeID  string     `json:"downtimeId"`
	MachineID   string     `json:"machineId"`
	Reason      string     `json:"reason,omitempty"`
	Resolved    bool       `json:"resolved"`
	ExpectedEnd *time.Time `json:"expectedEnd,omitempty"`
}

func (e *DowntimeChangedEvent) EventType() string   { return cloudevents.MachineDowntimeChanged }
func (e *DowntimeChangedEvent) AggregateID() string { return e.MachineID }
func (e *DowntimeChangedEvent) MachineRef() string  { return e.MachineID }
