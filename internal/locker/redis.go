package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

type RedisLocker struct {
	key   string
	mutex *redsync.Mutex
}

func NewRedisLocker(redisClient *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	rs := redsync.New(goredis.NewPool(redisClient))

	return &RedisLocker{
		key:   key,
		mutex: rs.NewMutex("run-lock:"+key, redsync.WithExpiry(ttl), redsync.WithTries(1)),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context) error {
	err := l.mutex.TryLockContext(ctx)
	if err == nil {
		return nil
	}

	if isTaken(err) {
		return fmt.Errorf("%w: %s", ErrLocked, l.key)
	}

	return fmt.Errorf("failed to acquire redis lock: %w", err)
}

func (l *RedisLocker) Unlock(ctx context.Context) error {
	ok, err := l.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to release redis lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to release redis lock: %s", l.key)
	}
	return nil
}

func isTaken(err error) bool {
	var taken *redsync.ErrTaken
	var takenValue redsync.ErrTaken
	return errors.As(err, &taken) || errors.As(err, &takenValue) || errors.Is(err, redsync.ErrFailed)
}
