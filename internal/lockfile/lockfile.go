// Package lockfile provides advisory flock(2) locks shared between modhost
// processes. Each CLI invocation is its own process, so in-memory mutexes
// alone cannot keep two invocations apart.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPollInterval is how often Acquire retries a held lock.
const DefaultPollInterval = 20 * time.Millisecond

// ErrLocked is returned by TryLock when another holder has the lock.
var ErrLocked = errors.New("lock is held")

// Lock is a held exclusive lock on a file.
type Lock struct {
	f    *os.File
	path string
}

// TryLock takes an exclusive lock on path without waiting, creating the
// file if needed. Locks conflict across processes and across separate
// TryLock calls within one process.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock %s: %w", path, err)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &Lock{f: f, path: path}, nil
}

// Acquire waits for an exclusive lock on path, retrying every poll until
// ctx is done.
func Acquire(ctx context.Context, path string, poll time.Duration) (*Lock, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		l, err := TryLock(path)
		if !errors.Is(err, ErrLocked) {
			return l, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Held reports whether someone currently holds the lock on path.
func Held(path string) (bool, error) {
	l, err := TryLock(path)
	if errors.Is(err, ErrLocked) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, l.Unlock()
}

// Path returns the locked file's path.
func (l *Lock) Path() string {
	return l.path
}

// Unlock releases the lock. The file is left in place; removing it would
// let a waiter lock an unlinked inode.
func (l *Lock) Unlock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
