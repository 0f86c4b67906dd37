package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLockHeld is returned when another run holds the stage lock
var ErrLockHeld = errors.New("stage lock held by another run")

// Locker serializes runs of the same stage
type Locker interface {
	// Acquire takes the lock of stage for at most ttl. The returned function
	// releases it.
	Acquire(ctx context.Context, stage string, ttl time.Duration) (release func(), err error)
}

// Deletes the key only if it still holds our token
//
//nolint:gochecknoglobals // Compiled once
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX keys
type RedisLocker struct {
	log    logrus.FieldLogger
	client redis.Cmdable
	prefix string
}

// NewRedisLocker creates a Redis backed locker. Keys are named
// <prefix>:lock:stage:<stage>.
func NewRedisLocker(log logrus.FieldLogger, client redis.Cmdable, prefix string) *RedisLocker {
	return &RedisLocker{
		log:    log.WithField("component", "stage_lock"),
		client: client,
		prefix: prefix,
	}
}

// Key returns the Redis key of the stage lock
func (l *RedisLocker) Key(stage string) string {
	key := "lock:stage:" + stage
	if l.prefix == "" {
		return key
	}

	return l.prefix + ":" + key
}

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context, stage string, ttl time.Duration) (func(), error) {
	key := l.Key(stage)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, stage)
	}

	return func() {
		// Release even when the run context is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.log.WithError(err).WithField("stage", stage).Warn("Failed to release stage lock")
		}
	}, nil
}
