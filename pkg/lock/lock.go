// Package lock provides named, time-limited entity locks shared by every
// process that mutates stock or machine queues.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/resilience"
)

// DefaultTTL is the lock lifetime when none is given
const DefaultTTL = 10 * time.Minute

// Entity types
const (
	EntityMaterial = "material"
	EntityMachine  = "machine"
	EntityOrder    = "order"
)

var (
	// ErrLockConflict is matched by every *ConflictError
	ErrLockConflict = errors.New("entity is locked by another holder")
	// ErrNotHolder is returned when releasing a lock owned by someone else
	ErrNotHolder = errors.New("lock is held by another holder")
)

// Lock is a held entity lock
type Lock struct {
	EntityType string    `json:"entityType" bson:"entityType"`
	EntityID   string    `json:"entityId" bson:"entityId"`
	Holder     string    `json:"holder" bson:"holder"`
	AcquiredAt time.Time `json:"acquiredAt" bson:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt" bson:"expiresAt"`
}

// Key is the storage key of the lock
func (l *Lock) Key() string {
	return Key(l.EntityType, l.EntityID)
}

// Expired reports whether the lock has lapsed at now
func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Key builds the storage key for an entity
func Key(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// ConflictError reports who holds the lock and until when
type ConflictError struct {
	EntityType string
	EntityID   string
	Holder     string
	ExpiresAt  time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s is locked by %s until %s", e.EntityType, e.EntityID, e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

// Is matches ErrLockConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrLockConflict
}

// Locker acquires and releases entity locks. Re-acquiring a lock already
// held by the same holder extends it.
type Locker interface {
	Acquire(ctx context.Context, entityType, entityID, holder string, ttl time.Duration) (*Lock, error)
	Release(ctx context.Context, entityType, entityID, holder string) error
	// Status returns the live lock on an entity, nil when free
	Status(ctx context.Context, entityType, entityID string) (*Lock, error)
	// ReleaseAllForHolder drops every lock of holder and returns how many
	ReleaseAllForHolder(ctx context.Context, holder string) (int, error)
	// CleanupExpired deletes lapsed locks and returns how many
	CleanupExpired(ctx context.Context) (int, error)
}

// Options tunes WithLock and AcquireWithRetry
type Options struct {
	TTL     time.Duration
	Retry   *resilience.RetryConfig
	Metrics *metrics.Metrics
}

// DefaultOptions retries conflicts a few times with exponential backoff
func DefaultOptions() *Options {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 5
	retry.InitialDelay = 50 * time.Millisecond
	retry.MaxDelay = time.Second
	retry.RetryableErrors = func(err error) bool {
		return errors.Is(err, ErrLockConflict)
	}
	return &Options{TTL: DefaultTTL, Retry: retry}
}

// AcquireWithRetry acquires the lock, backing off while another holder owns
// it. The last conflict is returned when the attempts run out.
func AcquireWithRetry(ctx context.Context, locker Locker, entityType, entityID, holder string, opts *Options) (*Lock, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	acquire := func() (*Lock, error) {
		return locker.Acquire(ctx, entityType, entityID, holder, ttl)
	}

	var (
		l   *Lock
		err error
	)
	if opts.Retry == nil {
		l, err = acquire()
	} else {
		l, err = resilience.RetryWithResult(ctx, opts.Retry, acquire)
	}

	switch {
	case err == nil:
		opts.Metrics.RecordLockAcquisition(entityType, "acquired")
	case errors.Is(err, ErrLockConflict):
		opts.Metrics.RecordLockAcquisition(entityType, "conflict")
	default:
		opts.Metrics.RecordLockAcquisition(entityType, "error")
	}
	return l, err
}

// WithLock runs fn while holding the entity lock. The lock is released on
// every exit path, including a panic in fn.
func WithLock(ctx context.Context, locker Locker, entityType, entityID, holder string, opts *Options, fn func(ctx context.Context) error) error {
	if _, err := AcquireWithRetry(ctx, locker, entityType, entityID, holder, opts); err != nil {
		return err
	}
	defer func() {
		_ = locker.Release(context.WithoutCancel(ctx), entityType, entityID, holder)
	}()

	return fn(ctx)
}
