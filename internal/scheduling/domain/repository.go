package domain

import (
	"context"
)

// FindByID methods return the matching Err*NotFound sentinel when nothing
// matches.

// StepRepository stores production steps
type StepRepository interface {
	Save(ctx context.Context, s *ProductionStep) error
	SaveAll(ctx context.Context, steps []*ProductionStep) error
	FindByID(ctx context.Context, id string) (*ProductionStep, error)
	// FindByOrder returns steps in routing sequence
	FindByOrder(ctx context.Context, orderID string) ([]*ProductionStep, error)
	// FindByMachine returns the machine's steps with one of statuses, or
	// all of them when statuses is empty
	FindByMachine(ctx context.Context, machineID string, statuses ...StepStatus) ([]*ProductionStep, error)
	FindDependents(ctx context.Context, stepID string) ([]*ProductionStep, error)
	FindByStatus(ctx context.Context, statuses ...StepStatus) ([]*ProductionStep, error)
}

// MachineRepository stores machines
type MachineRepository interface {
	Save(ctx context.Context, m *Machine) error
	FindByID(ctx context.Context, id string) (*Machine, error)
	// FindAll returns machines ordered by ID
	FindAll(ctx context.Context) ([]*Machine, error)
}

// DowntimeRepository stores machine downtime windows
type DowntimeRepository interface {
	Save(ctx context.Context, d *MachineDowntime) error
	FindByID(ctx context.Context, id string) (*MachineDowntime, error)
	FindUnresolved(ctx context.Context, machineID string) ([]*MachineDowntime, error)
}

// OrderRepository stores the scheduling view of orders
type OrderRepository interface {
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
}

// TemplateRepository stores product templates
type TemplateRepository interface {
	Save(ctx context.Context, t *ProductTemplate) error
	FindByID(ctx context.Context, id string) (*ProductTemplate, error)
}

// Transactor runs fn inside a storage transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
