package locker

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
)

type FSLocker struct {
	lock *flock.Flock
}

func NewFSLocker(filePath string) *FSLocker {
	return &FSLocker{lock: flock.New(filePath)}
}

func (l *FSLocker) TryLock(context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("error locking file: %w", err)
	}

	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, l.lock.Path())
	}

	return nil
}

func (l *FSLocker) Unlock(context.Context) error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("error unlocking file: %w", err)
	}
	return nil
}
