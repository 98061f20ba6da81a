package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	pkgtesting "github.com/marimovDEV/tipografiya/pkg/testing"
)

// lockerContract runs the same behaviour checks against every backend
type lockerContract struct {
	suite.Suite
	newLocker func() Locker
	locker    Locker
}

func (s *lockerContract) SetupTest() {
	s.locker = s.newLocker()
}

func (s *lockerContract) TestAcquireConflictRelease() {
	ctx := context.Background()
	entityID := s.T().Name()

	l, err := s.locker.Acquire(ctx, EntityMaterial, entityID, "alice", time.Minute)
	s.Require().NoError(err)
	s.Equal("alice", l.Holder)

	_, err = s.locker.Acquire(ctx, EntityMaterial, entityID, "bob", time.Minute)
	s.ErrorIs(err, ErrLockConflict)

	again, err := s.locker.Acquire(ctx, EntityMaterial, entityID, "alice", 2*time.Minute)
	s.Require().NoError(err)
	s.True(again.ExpiresAt.After(l.ExpiresAt) || again.ExpiresAt.Equal(l.ExpiresAt))

	s.ErrorIs(s.locker.Release(ctx, EntityMaterial, entityID, "bob"), ErrNotHolder)
	s.Require().NoError(s.locker.Release(ctx, EntityMaterial, entityID, "alice"))

	status, err := s.locker.Status(ctx, EntityMaterial, entityID)
	s.Require().NoError(err)
	s.Nil(status)
}

func (s *lockerContract) TestReleaseAllForHolder() {
	ctx := context.Background()

	_, err := s.locker.Acquire(ctx, EntityMachine, "m-1", "worker-9", time.Minute)
	s.Require().NoError(err)
	_, err = s.locker.Acquire(ctx, EntityMachine, "m-2", "worker-9", time.Minute)
	s.Require().NoError(err)

	n, err := s.locker.ReleaseAllForHolder(ctx, "worker-9")
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *lockerContract) TestShortTTLExpires() {
	ctx := context.Background()

	_, err := s.locker.Acquire(ctx, EntityOrder, "o-1", "alice", 100*time.Millisecond)
	s.Require().NoError(err)

	time.Sleep(250 * time.Millisecond)
	l, err := s.locker.Acquire(ctx, EntityOrder, "o-1", "bob", time.Minute)
	s.Require().NoError(err)
	s.Equal("bob", l.Holder)
}

func TestMemoryLockerContract(t *testing.T) {
	suite.Run(t, &lockerContract{newLocker: func() Locker { return NewMemoryLocker() }})
}

func TestMongoLockerContract(t *testing.T) {
	_, db := pkgtesting.MongoDatabase(t, "locks_test")
	require.NoError(t, NewMongoLocker(db).EnsureIndexes(context.Background()))

	suite.Run(t, &lockerContract{newLocker: func() Locker {
		_ = db.Collection(LocksCollection).Drop(context.Background())
		return NewMongoLocker(db)
	}})
}

func TestRedisLockerContract(t *testing.T) {
	addr := pkgtesting.RedisAddr(t)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	assert.NoError(t, rdb.Ping(context.Background()).Err())

	suite.Run(t, &lockerContract{newLocker: func() Locker {
		_ = rdb.FlushDB(context.Background()).Err()
		return NewRedisLocker(rdb)
	}})
}
