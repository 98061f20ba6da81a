package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
)

// EventPublisher delivers a CloudEvent to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.PlanningEvent) error
}

// PublisherConfig holds configuration for the outbox relay
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    100,
	}
}

// Publisher relays outbox events to Kafka on a ticker
type Publisher struct {
	repo      Repository
	producer  EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewPublisher creates a new outbox relay
func NewPublisher(repo Repository, producer EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start launches the relay loop
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("publisher already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	p.logger.Info("Starting outbox publisher", "interval", p.interval, "batchSize", p.batchSize)
	go p.run(ctx)
	return nil
}

// Stop stops the relay loop and waits for it to exit
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher not running")
	}
	p.running = false
	close(p.stopCh)
	stopped := p.stoppedCh
	p.mu.Unlock()

	<-stopped
	p.logger.Info("Outbox publisher stopped")
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.ProcessOnce(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce relays one batch of pending events and returns how many were
// published successfully.
func (p *Publisher) ProcessOnce(ctx context.Context) int {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to find unpublished events")
		return 0
	}
	p.metrics.SetOutboxPending(len(events))

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.WithError(err).Error("Failed to publish event",
				"eventId", event.ID,
				"eventType", event.EventType,
				"aggregateId", event.AggregateID,
			)
			p.metrics.RecordOutboxPublish(event.EventType, false)
			if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("Failed to increment retry count", "eventId", event.ID)
			}
			continue
		}

		p.metrics.RecordOutboxPublish(event.EventType, true)
		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark event as published", "eventId", event.ID)
			continue
		}
		published++
	}
	return published
}

func (p *Publisher) publish(ctx context.Context, event *OutboxEvent) error {
	ce, err := event.ToCloudEvent()
	if err != nil {
		return fmt.Errorf("failed to decode outbox payload: %w", err)
	}
	return p.producer.PublishEvent(ctx, event.Topic, ce)
}
