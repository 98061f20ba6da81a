package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marimovDEV/tipografiya/pkg/logging"
)

// EventFactory creates CloudEvents for one event source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent creates an event and copies the correlation ID found on ctx
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *PlanningEvent {
	event := &PlanningEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
	if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.CorrelationID = v
	}
	return event
}

// Source returns the factory's event source
func (f *EventFactory) Source() string {
	return f.source
}
