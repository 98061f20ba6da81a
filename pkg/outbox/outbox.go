package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
)

// DefaultMaxRetries is how often the relay retries an event before giving up
const DefaultMaxRetries = 10

// OutboxEvent is a CloudEvent stored next to the state change that produced
// it, waiting to be relayed to Kafka.
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEvent wraps a CloudEvent for the outbox
func NewOutboxEvent(aggregateID, aggregateType, topic string, event *cloudevents.PlanningEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     event.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

// IsPublished checks if the event has been relayed
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry checks if the event should be retried
func (e *OutboxEvent) ShouldRetry() bool {
	return !e.IsPublished() && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the stored payload
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.PlanningEvent, error) {
	var event cloudevents.PlanningEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
