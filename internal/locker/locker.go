package locker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("another run holds the lock")

const (
	DriverFS    = "fs"
	DriverRedis = "redis"
	DriverNone  = "none"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Locker guards a bulk job so that it is never dispatched twice at the same time.
type Locker interface {
	TryLock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

type Config struct {
	Driver string
	Dir    string
	TTL    time.Duration
}

// New returns the locker for the configured driver, keyed by the job name.
func New(cfg Config, redisClient *redis.Client, job string) (Locker, error) {
	key := Key(job)

	switch strings.ToLower(cfg.Driver) {
	case DriverFS, "":
		return NewFSLocker(filepath.Join(cfg.Dir, key+".lock")), nil
	case DriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis locker requires a redis client")
		}
		return NewRedisLocker(redisClient, key, cfg.TTL), nil
	case DriverNone:
		return noopLocker{}, nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}

// Key turns a job name, typically the recipients file path, into a lock key.
func Key(job string) string {
	cleaned := unsafeKeyChars.ReplaceAllString(filepath.Clean(job), "_")
	return "mailer-" + strings.Trim(cleaned, "_")
}

type noopLocker struct{}

func (noopLocker) TryLock(context.Context) error { return nil }

func (noopLocker) Unlock(context.Context) error { return nil }
