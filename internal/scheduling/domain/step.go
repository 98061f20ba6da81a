package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepStatus is the stored lifecycle state of a production step. Blocked is
// not a status; it is derived from the predecessor.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
)

// Priority bounds; lower values run first
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// ValidatePriority checks the 1..10 range
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, p)
	}
	return nil
}

// ProductionStep is one routing operation of an order, optionally queued on
// a machine. A step has at most one predecessor.
type ProductionStep struct {
	ID                string        `bson:"_id" json:"id"`
	OrderID           string        `bson:"orderId" json:"orderId"`
	Kind              string        `bson:"kind" json:"kind"`
	Sequence          int           `bson:"sequence" json:"sequence"`
	Status            StepStatus    `bson:"status" json:"status"`
	Priority          int           `bson:"priority" json:"priority"`
	QueuePosition     int           `bson:"queuePosition" json:"queuePosition"`
	MachineID         string        `bson:"machineId,omitempty" json:"machineId,omitempty"`
	DependsOn         string        `bson:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Quantity          int           `bson:"quantity" json:"quantity"`
	Sheets            int           `bson:"sheets" json:"sheets"`
	PerSheet          bool          `bson:"perSheet" json:"perSheet"`
	EstimatedStart    *time.Time    `bson:"estimatedStart,omitempty" json:"estimatedStart,omitempty"`
	EstimatedEnd      *time.Time    `bson:"estimatedEnd,omitempty" json:"estimatedEnd,omitempty"`
	EstimatedDuration time.Duration `bson:"estimatedDuration" json:"estimatedDuration"`
	ActualStart       *time.Time    `bson:"actualStart,omitempty" json:"actualStart,omitempty"`
	ActualEnd         *time.Time    `bson:"actualEnd,omitempty" json:"actualEnd,omitempty"`
	CreatedAt         time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// NewProductionStep creates a pending step for an order
func NewProductionStep(orderID, kind string, sequence, priority, quantity, sheets int, perSheet bool, now time.Time) *ProductionStep {
	return &ProductionStep{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Kind:      kind,
		Sequence:  sequence,
		Status:    StepPending,
		Priority:  priority,
		Quantity:  quantity,
		Sheets:    sheets,
		PerSheet:  perSheet,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether the step still occupies its machine
func (s *ProductionStep) Active() bool {
	return s.Status == StepPending || s.Status == StepInProgress
}

// Ready reports whether the step may start: it has no predecessor or the
// predecessor is completed. pred must be the step named by DependsOn.
func (s *ProductionStep) Ready(pred *ProductionStep) bool {
	if s.DependsOn == "" {
		return true
	}
	return pred != nil && pred.Status == StepCompleted
}

// Units is the count the per-unit rate applies to
func (s *ProductionStep) Units() int {
	if s.PerSheet && s.Sheets > 0 {
		return s.Sheets
	}
	return s.Quantity
}

// FinishTime is the actual end when completed, otherwise the estimate
func (s *ProductionStep) FinishTime() *time.Time {
	if s.Status == StepCompleted && s.ActualEnd != nil {
		return s.ActualEnd
	}
	return s.EstimatedEnd
}

// SetEstimate stores projected times
func (s *ProductionStep) SetEstimate(start, end time.Time, d time.Duration, now time.Time) {
	s.EstimatedStart = &start
	s.EstimatedEnd = &end
	s.EstimatedDuration = d
	s.UpdatedAt = now
}

// Start moves a pending step to in progress. It takes queue position 0.
func (s *ProductionStep) Start(now time.Time) error {
	if s.Status != StepPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StepInProgress)
	}
	s.Status = StepInProgress
	s.ActualStart = &now
	s.QueuePosition = 0
	s.UpdatedAt = now
	return nil
}

// Complete moves an in-progress step to completed
func (s *ProductionStep) Complete(now time.Time) error {
	if s.Status != StepInProgress {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StepCompleted)
	}
	s.Status = StepCompleted
	s.ActualEnd = &now
	s.QueuePosition = 0
	s.UpdatedAt = now
	return nil
}

// ActualDuration is the worked time of a completed step
func (s *ProductionStep) ActualDuration() (time.Duration, bool) {
	if s.ActualStart == nil || s.ActualEnd == nil {
		return 0, false
	}
	return s.ActualEnd.Sub(*s.ActualStart), true
}
