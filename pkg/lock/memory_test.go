package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedLocker() (*MemoryLocker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	return NewMemoryLockerWithClock(clock.Now), clock
}

func TestMemoryLocker_ConflictAndExtend(t *testing.T) {
	ctx := context.Background()
	locker, clock := newClockedLocker()

	first, err := locker.Acquire(ctx, EntityMaterial, "paper-1", "alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), first.ExpiresAt)

	_, err = locker.Acquire(ctx, EntityMaterial, "paper-1", "bob", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockConflict)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "alice", conflict.Holder)
	assert.Equal(t, first.ExpiresAt, conflict.ExpiresAt)

	clock.Advance(30 * time.Second)
	extended, err := locker.Acquire(ctx, EntityMaterial, "paper-1", "alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first.AcquiredAt, extended.AcquiredAt)
	assert.Equal(t, clock.Now().Add(time.Minute), extended.ExpiresAt)
}

func TestMemoryLocker_ExpiredLockCanBeTaken(t *testing.T) {
	ctx := context.Background()
	locker, clock := newClockedLocker()

	_, err := locker.Acquire(ctx, EntityMachine, "m-1", "alice", time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	l, err := locker.Acquire(ctx, EntityMachine, "m-1", "bob", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "bob", l.Holder)
}

func TestMemoryLocker_Release(t *testing.T) {
	ctx := context.Background()
	locker, _ := newClockedLocker()

	_, err := locker.Acquire(ctx, EntityOrder, "o-1", "alice", 0)
	require.NoError(t, err)

	assert.ErrorIs(t, locker.Release(ctx, EntityOrder, "o-1", "bob"), ErrNotHolder)
	require.NoError(t, locker.Release(ctx, EntityOrder, "o-1", "alice"))
	require.NoError(t, locker.Release(ctx, EntityOrder, "o-1", "alice"))

	status, err := locker.Status(ctx, EntityOrder, "o-1")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestMemoryLocker_DefaultTTL(t *testing.T) {
	locker, clock := newClockedLocker()

	l, err := locker.Acquire(context.Background(), EntityOrder, "o-1", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultTTL), l.ExpiresAt)
}

func TestMemoryLocker_AdminOperations(t *testing.T) {
	ctx := context.Background()
	locker, clock := newClockedLocker()

	_, _ = locker.Acquire(ctx, EntityMaterial, "a", "alice", time.Minute)
	_, _ = locker.Acquire(ctx, EntityMaterial, "b", "alice", time.Hour)
	_, _ = locker.Acquire(ctx, EntityMachine, "c", "bob", time.Minute)

	assert.Len(t, locker.List(EntityMaterial), 2)
	assert.Len(t, locker.List(""), 3)

	clock.Advance(2 * time.Minute)
	n, err := locker.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = locker.ReleaseAllForHolder(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, locker.List(""))
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()
	boom := errors.New("boom")

	err := WithLock(ctx, locker, EntityMachine, "m-1", "alice", nil, func(ctx context.Context) error {
		held, err := locker.Status(ctx, EntityMachine, "m-1")
		require.NoError(t, err)
		require.NotNil(t, held)
		assert.Equal(t, "alice", held.Holder)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	held, err := locker.Status(ctx, EntityMachine, "m-1")
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	assert.Panics(t, func() {
		_ = WithLock(ctx, locker, EntityMachine, "m-1", "alice", nil, func(ctx context.Context) error {
			panic("bad step")
		})
	})

	held, err := locker.Status(ctx, EntityMachine, "m-1")
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestAcquireWithRetry_WaitsForRelease(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	_, err := locker.Acquire(ctx, EntityMaterial, "paper-1", "alice", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = locker.Release(ctx, EntityMaterial, "paper-1", "alice")
	}()

	opts := DefaultOptions()
	opts.Retry.MaxAttempts = 20
	opts.Retry.InitialDelay = 20 * time.Millisecond
	opts.Retry.MaxDelay = 50 * time.Millisecond

	l, err := AcquireWithRetry(ctx, locker, EntityMaterial, "paper-1", "bob", opts)
	require.NoError(t, err)
	assert.Equal(t, "bob", l.Holder)
}

func TestAcquireWithRetry_SurfacesConflict(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	_, err := locker.Acquire(ctx, EntityMaterial, "paper-1", "alice", time.Minute)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Retry.MaxAttempts = 2
	opts.Retry.InitialDelay = time.Millisecond

	_, err = AcquireWithRetry(ctx, locker, EntityMaterial, "paper-1", "bob", opts)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "alice", conflict.Holder)
}
