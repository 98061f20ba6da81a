package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines outbox persistence. SaveAll must join any transaction
// carried by ctx.
type Repository interface {
	SaveAll(ctx context.Context, events []*OutboxEvent) error
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}

// MemoryRepository keeps outbox events in process
type MemoryRepository struct {
	mu     sync.Mutex
	events []*OutboxEvent
}

// NewMemoryRepository creates an empty in-memory outbox
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *MemoryRepository) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*OutboxEvent
	for _, e := range r.events {
		if e.ShouldRetry() {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			now := time.Now().UTC()
			e.PublishedAt = &now
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == eventID {
			e.RetryCount++
			e.LastError = errorMsg
		}
	}
	return nil
}

func (r *MemoryRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns a snapshot of every stored event
func (r *MemoryRepository) Events() []*OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*OutboxEvent, len(r.events))
	copy(out, r.events)
	return out
}
