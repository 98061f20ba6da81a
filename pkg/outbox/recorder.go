package outbox

import (
	"context"
	"fmt"

	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
)

// DomainEvent is implemented by the domain events of every bounded context
type DomainEvent interface {
	EventType() string
	AggregateID() string
}

// Recorder turns domain events into outbox rows for one aggregate type and
// topic. A nil *Recorder records nothing.
type Recorder struct {
	repo          Repository
	factory       *cloudevents.EventFactory
	aggregateType string
	topic         string
}

// NewRecorder creates a recorder
func NewRecorder(repo Repository, factory *cloudevents.EventFactory, aggregateType, topic string) *Recorder {
	return &Recorder{
		repo:          repo,
		factory:       factory,
		aggregateType: aggregateType,
		topic:         topic,
	}
}

// Record stores events in the outbox. It must be called with the same ctx
// as the state change so both commit together.
func (r *Recorder) Record(ctx context.Context, events ...DomainEvent) error {
	if r == nil || len(events) == 0 {
		return nil
	}

	rows := make([]*OutboxEvent, 0, len(events))
	for _, e := range events {
		ce := r.factory.CreateEvent(ctx, e.EventType(), e.AggregateID(), e)
		if withOrder, ok := e.(interface{ OrderRef() string }); ok {
			ce.OrderID = withOrder.OrderRef()
		}
		if withMachine, ok := e.(interface{ MachineRef() string }); ok {
			ce.MachineID = withMachine.MachineRef()
		}

		row, err := NewOutboxEvent(e.AggregateID(), r.aggregateType, r.topic, ce)
		if err != nil {
			return fmt.Errorf("failed to build outbox event %s: %w", e.EventType(), err)
		}
		rows = append(rows, row)
	}

	return r.repo.SaveAll(ctx, rows)
}
