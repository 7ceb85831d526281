package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFileName = "state.lock"

// StateLock serializes load, mutate and save cycles across processes that
// share a state directory.
type StateLock struct {
	fl *flock.Flock
}

func NewStateLock(dir string) *StateLock {
	return &StateLock{fl: flock.New(filepath.Join(dir, lockFileName))}
}

// Acquire blocks until the lock is held, the timeout passes or ctx is done.
func (l *StateLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ok, err := l.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", l.fl.Path())
	}
	return nil
}

func (l *StateLock) Release() error {
	return l.fl.Unlock()
}

func (l *StateLock) Path() string { return l.fl.Path() }
