package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"merchshop/pkg/logger"
)

// ============================================================================
// Redis distributed lock
// ============================================================================
//
// Acquire: SET key token NX PX ttl
//   - NX: only the first caller wins the key
//   - PX: the key expires on its own if the holder dies
//   - token: identifies the holder so release never deletes someone else's lock
//
// Release: compare-and-delete in a Lua script so the check and the DEL are one
// atomic step on the server.
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("failed to acquire lock")
	ErrLockExpired = errors.New("lock expired before release")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock is a single-key lock held in Redis.
type DistributedLock struct {
	client     redis.Cmdable
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client redis.Cmdable, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes one non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries TryLock every retryInterval, at most maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock if it is still held by this owner. It returns
// ErrLockExpired when the key had already expired or changed hands.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// ============================================================================
// RedisLocker
// ============================================================================

// RedisLocker implements Locker with one DistributedLock per key. It lets
// several API instances share per-account serialisation.
type RedisLocker struct {
	client        redis.Cmdable
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
	newToken      func() string
}

// NewRedisLocker waits up to roughly one ttl for a busy key before giving up.
func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	retryInterval := 20 * time.Millisecond
	maxRetries := int(ttl / retryInterval)
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &RedisLocker{
		client:        client,
		prefix:        "ledger:lock:",
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
		newToken:      uuid.NewString,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	dl := NewDistributedLock(l.client, l.prefix+key, l.newToken(), l.ttl)
	if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		// release must outlive a cancelled request context
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := dl.Unlock(releaseCtx); err != nil {
			// ErrLockExpired: the ttl ran out inside the critical section
			logger.Log.Warn("release lock",
				logger.String("key", key),
				logger.Duration("ttl", l.ttl),
				logger.Error(err),
			)
		}
	}, nil
}
