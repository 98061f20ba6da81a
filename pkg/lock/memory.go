package lock

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryLocker keeps locks in process
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*Lock
	now   func() time.Time
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return NewMemoryLockerWithClock(time.Now)
}

// NewMemoryLockerWithClock creates a locker that reads time from now
func NewMemoryLockerWithClock(now func() time.Time) *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*Lock), now: now}
}

func (m *MemoryLocker) Acquire(ctx context.Context, entityType, entityID, holder string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	key := Key(entityType, entityID)

	if cur, ok := m.locks[key]; ok && !cur.Expired(now) {
		if cur.Holder != holder {
			return nil, &ConflictError{EntityType: entityType, EntityID: entityID, Holder: cur.Holder, ExpiresAt: cur.ExpiresAt}
		}
		cur.ExpiresAt = now.Add(ttl)
		out := *cur
		return &out, nil
	}

	l := &Lock{EntityType: entityType, EntityID: entityID, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	m.locks[key] = l
	out := *l
	return &out, nil
}

func (m *MemoryLocker) Release(ctx context.Context, entityType, entityID, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(entityType, entityID)
	cur, ok := m.locks[key]
	if !ok || cur.Expired(m.now()) {
		delete(m.locks, key)
		return nil
	}
	if cur.Holder != holder {
		return ErrNotHolder
	}
	delete(m.locks, key)
	return nil
}

func (m *MemoryLocker) Status(ctx context.Context, entityType, entityID string) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.locks[Key(entityType, entityID)]
	if !ok || cur.Expired(m.now()) {
		return nil, nil
	}
	out := *cur
	return &out, nil
}

func (m *MemoryLocker) ReleaseAllForHolder(ctx context.Context, holder string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, l := range m.locks {
		if l.Holder == holder {
			delete(m.locks, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryLocker) CleanupExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for key, l := range m.locks {
		if l.Expired(now) {
			delete(m.locks, key)
			n++
		}
	}
	return n, nil
}

// List returns live locks, optionally filtered by entity type
func (m *MemoryLocker) List(entityType string) []Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Lock
	for key, l := range m.locks {
		if l.Expired(now) {
			continue
		}
		if entityType != "" && !strings.HasPrefix(key, entityType+":") {
			continue
		}
		out = append(out, *l)
	}
	return out
}
