package kindred

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker shared by every process talking to the same Redis.
// A lock is a key holding a random token with a lease; an expired lease
// frees the companion if its holder dies.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	lease  time.Duration
	retry  time.Duration
	logger *log.Logger
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLockPrefix sets the key prefix (default "kindred:lock:").
func WithLockPrefix(p string) RedisLockerOption {
	return func(r *RedisLocker) { r.prefix = p }
}

// WithLockLease sets how long a lock survives without release (default 30s).
func WithLockLease(d time.Duration) RedisLockerOption {
	return func(r *RedisLocker) { r.lease = d }
}

// WithLockRetry sets the polling interval while waiting (default 25ms).
func WithLockRetry(d time.Duration) RedisLockerOption {
	return func(r *RedisLocker) { r.retry = d }
}

// WithLockLogger sets where failed releases are reported (default log.Default()).
func WithLockLogger(l *log.Logger) RedisLockerOption {
	return func(r *RedisLocker) { r.logger = l }
}

// NewRedisLocker creates a Locker backed by client.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	r := &RedisLocker{
		client: client,
		prefix: "kindred:lock:",
		lease:  30 * time.Second,
		retry:  25 * time.Millisecond,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock implements Locker.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("kindred: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return func() {
		// Released on a fresh context: the caller's may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
			r.logger.Error("release lock failed, held until lease expires", "key", key, "lease", r.lease, "err", err)
		}
	}, nil
}
