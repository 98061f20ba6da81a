package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript takes a free lock, extends our own, or reports the holder.
// Returns {1, acquiredAtMs, ttlMs} or {0, holder, ttlMs}.
var acquireScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'holder')
if not cur then
  redis.call('HSET', KEYS[1], 'holder', ARGV[1], 'acquiredAt', ARGV[2])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return {1, ARGV[2], tonumber(ARGV[3])}
end
if cur == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return {1, redis.call('HGET', KEYS[1], 'acquiredAt'), tonumber(ARGV[3])}
end
return {0, cur, redis.call('PTTL', KEYS[1])}
`)

// releaseScript deletes the lock only when ARGV[1] holds it.
// Returns 1 deleted, 0 absent, -1 held by someone else.
var releaseScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'holder')
if not cur then
  return 0
end
if cur == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return -1
`)

// RedisLocker stores locks as expiring hashes
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "lock:", now: time.Now}
}

func (r *RedisLocker) key(entityType, entityID string) string {
	return r.prefix + Key(entityType, entityID)
}

func (r *RedisLocker) Acquire(ctx context.Context, entityType, entityID, holder string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := r.now().UTC()

	res, err := acquireScript.Run(ctx, r.rdb,
		[]string{r.key(entityType, entityID)},
		holder, strconv.FormatInt(now.UnixMilli(), 10), strconv.FormatInt(ttl.Milliseconds(), 10),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", Key(entityType, entityID), err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected acquire reply %v", res)
	}

	ok, _ := res[0].(int64)
	text, _ := res[1].(string)
	ttlMs, _ := res[2].(int64)
	expiresAt := now.Add(time.Duration(ttlMs) * time.Millisecond)

	if ok != 1 {
		return nil, &ConflictError{EntityType: entityType, EntityID: entityID, Holder: text, ExpiresAt: expiresAt}
	}

	acquiredMs, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		acquiredMs = now.UnixMilli()
	}
	return &Lock{
		EntityType: entityType,
		EntityID:   entityID,
		Holder:     holder,
		AcquiredAt: time.UnixMilli(acquiredMs).UTC(),
		ExpiresAt:  expiresAt,
	}, nil
}

func (r *RedisLocker) Release(ctx context.Context, entityType, entityID, holder string) error {
	n, err := releaseScript.Run(ctx, r.rdb, []string{r.key(entityType, entityID)}, holder).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", Key(entityType, entityID), err)
	}
	if n < 0 {
		return ErrNotHolder
	}
	return nil
}

func (r *RedisLocker) Status(ctx context.Context, entityType, entityID string) (*Lock, error) {
	key := r.key(entityType, entityID)

	pipe := r.rdb.Pipeline()
	fields := pipe.HGetAll(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read lock %s: %w", Key(entityType, entityID), err)
	}

	values := fields.Val()
	holder, ok := values["holder"]
	if !ok || pttl.Val() <= 0 {
		return nil, nil
	}
	now := r.now().UTC()
	acquiredMs, err := strconv.ParseInt(values["acquiredAt"], 10, 64)
	if err != nil {
		acquiredMs = now.UnixMilli()
	}
	return &Lock{
		EntityType: entityType,
		EntityID:   entityID,
		Holder:     holder,
		AcquiredAt: time.UnixMilli(acquiredMs).UTC(),
		ExpiresAt:  now.Add(pttl.Val()),
	}, nil
}

func (r *RedisLocker) ReleaseAllForHolder(ctx context.Context, holder string) (int, error) {
	released := 0
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := releaseScript.Run(ctx, r.rdb, []string{iter.Val()}, holder).Int()
		if err != nil {
			return released, fmt.Errorf("failed to release %s: %w", iter.Val(), err)
		}
		if n == 1 {
			released++
		}
	}
	if err := iter.Err(); err != nil {
		return released, fmt.Errorf("failed to scan locks: %w", err)
	}
	return released, nil
}

// CleanupExpired is a no-op: Redis expires lock keys itself
func (r *RedisLocker) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}
