package domain

import "errors"

var (
	ErrStepNotFound      = errors.New("production step not found")
	ErrMachineNotFound   = errors.New("machine not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrTemplateNotFound  = errors.New("product template not found")
	ErrDowntimeNotFound  = errors.New("machine downtime not found")
	ErrInvalidPriority   = errors.New("priority must be between 1 and 10")
	ErrInvalidTransition = errors.New("invalid step status transition")
	ErrStepBlocked       = errors.New("step is waiting for its predecessor")
	ErrMachineInactive   = errors.New("machine is not active")
	ErrInvalidOrder      = errors.New("order quantity must be positive")
)
