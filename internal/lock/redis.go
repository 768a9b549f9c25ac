package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const redisKeyPrefix = "vetbill:lock:"

var errLockHeld = errors.New("lock_held")

// RedisLocker is a SET NX lock shared by every process pointing at the same
// Redis. The ttl bounds how long a crashed holder can block others.
type RedisLocker struct {
	client  *redis.Client
	script  *redis.Script
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl, timeout time.Duration, log *zap.Logger) *RedisLocker {
	if client == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		client:  client,
		script:  redis.NewScript(lockReleaseScript),
		ttl:     ttl,
		timeout: timeout,
		log:     log,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if l.ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{redisKeyPrefix + key}, token).Err()
}

// Lock polls TryLock with exponential backoff until the lock is free or the
// timeout elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lock client not configured")
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	token, err := backoff.Retry(waitCtx, func() (string, error) {
		token, ok, err := l.TryLock(waitCtx, key)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		if !ok {
			return "", errLockHeld
		}
		return token, nil
	}, backoff.WithBackOff(policy))
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		if errors.Is(err, errLockHeld) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.release(context.WithoutCancel(ctx), key, token)
		})
	}, nil
}

// release drops the lock and logs a failure; the key then stays held until
// its ttl expires.
func (l *RedisLocker) release(ctx context.Context, key, token string) {
	if err := l.Release(ctx, key, token); err != nil {
		l.log.Warn("lock release failed",
			zap.String("key", key),
			zap.Duration("ttl", l.ttl),
			zap.Error(err),
		)
	}
}
