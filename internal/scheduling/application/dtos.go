package application

import (
	"time"

	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
)

// StepDTO is a production step with its projected and actual times
type StepDTO struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"orderId"`
	Kind             string            `json:"kind"`
	Sequence         int               `json:"sequence"`
	Status           domain.StepStatus `json:"status"`
	Priority         int               `json:"priority"`
	QueuePosition    int               `json:"queuePosition"`
	MachineID        string            `json:"machineId,omitempty"`
	DependsOn        string            `json:"dependsOn,omitempty"`
	EstimatedStart   *time.Time        `json:"estimatedStart,omitempty"`
	EstimatedEnd     *time.Time        `json:"estimatedEnd,omitempty"`
	EstimatedMinutes float64           `json:"estimatedMinutes"`
	ActualStart      *time.Time        `json:"actualStart,omitempty"`
	ActualEnd        *time.Time        `json:"actualEnd,omitempty"`
	Quantity         int               `json:"quantity"`
	Sheets           int               `json:"sheets,omitempty"`
}

// QueueEntryDTO is a queued step with its readiness
type QueueEntryDTO struct {
	StepDTO
	Ready bool `json:"ready"`
}

// MachineDTO describes a machine
type MachineDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	HourlyRate     float64 `json:"hourlyRate"`
	SetupMinutes   float64 `json:"setupMinutes"`
	MinutesPerUnit float64 `json:"minutesPerUnit"`
	IsActive       bool    `json:"isActive"`
}

// MachineQueueDTO is the queue of one machine
type MachineQueueDTO struct {
	MachineID       string          `json:"machineId"`
	MachineName     string          `json:"machineName"`
	MachineType     string          `json:"machineType"`
	Queue           []QueueEntryDTO `json:"queue"`
	TotalPending    int             `json:"totalPending"`
	TotalInProgress int             `json:"totalInProgress"`
}

// StepTimesDTO is the outcome of a time calculation
type StepTimesDTO struct {
	StepID           string    `json:"stepId"`
	EstimatedStart   time.Time `json:"estimatedStart"`
	EstimatedEnd     time.Time `json:"estimatedEnd"`
	EstimatedMinutes float64   `json:"estimatedMinutes"`
	Cached           bool      `json:"cached"`
}

// OrderScheduleDTO lists the steps of a scheduled order
type OrderScheduleDTO struct {
	OrderID string    `json:"orderId"`
	Created bool      `json:"created"`
	Steps   []StepDTO `json:"steps"`
}

// AnalyticsDTO summarizes production across all machines
type AnalyticsDTO struct {
	TotalPending           int       `json:"totalPending"`
	TotalInProgress        int       `json:"totalInProgress"`
	TotalCompletedToday    int       `json:"totalCompletedToday"`
	LateSteps              int       `json:"lateSteps"`
	AverageDurationMinutes float64   `json:"averageDurationMinutes"`
	Timestamp              time.Time `json:"timestamp"`
}

// CompletionEstimateDTO projects when an order will be ready
type CompletionEstimateDTO struct {
	OrderID             string     `json:"orderId"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`
	SuggestedDeadline   *time.Time `json:"suggestedDeadline,omitempty"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	OnTime              *bool      `json:"onTime,omitempty"`
	UnscheduledSteps    int        `json:"unscheduledSteps"`
}

// DowntimeDTO describes a downtime window
type DowntimeDTO struct {
	ID          string     `json:"id"`
	MachineID   string     `json:"machineId"`
	Reason      string     `json:"reason,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	ExpectedEnd *time.Time `json:"expectedEnd,omitempty"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// TemplateDTO describes a product template
type TemplateDTO struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Routing []domain.RoutingEntry `json:"routing"`
}
