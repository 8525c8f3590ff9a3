// Package lock implements the process-wide index lock that serializes
// findx's mutating commands (index, watch, oneshot). Only one process may
// hold the lock at a time; a second acquisition attempt fails immediately
// rather than waiting for the first to finish.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	findxerrors "github.com/gaspardpetit/findx/internal/errors"
)

// lockFileName is the name of the lock file created under the state
// directory.
const lockFileName = "index.lock"

// IndexLock guards a findx state directory against concurrent mutating
// commands using an OS advisory file lock (works on Unix, macOS and
// Windows via gofrs/flock).
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New returns an IndexLock for the given state directory. The lock file
// itself lives at <stateDir>/index.lock.
func New(stateDir string) *IndexLock {
	path := filepath.Join(stateDir, lockFileName)
	return &IndexLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire attempts to take the lock without blocking. If another process
// already holds it, it returns a *findxerrors.FindxError with Kind
// LockExists.
func (l *IndexLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return findxerrors.NewIoError("failed to create state directory for lock", err)
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return findxerrors.NewIoError("failed to acquire index lock", err)
	}
	if !ok {
		return findxerrors.NewLockExistsError(fmt.Sprintf("index lock held by another process: %s", l.path), nil)
	}

	l.locked = true
	return nil
}

// Release frees the lock. Safe to call on an already-released or never
// acquired lock.
func (l *IndexLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return findxerrors.NewIoError("failed to release index lock", err)
	}
	return nil
}

// Path returns the lock file's path.
func (l *IndexLock) Path() string { return l.path }

// Held reports whether this IndexLock instance currently holds the lock.
func (l *IndexLock) Held() bool { return l.locked }
