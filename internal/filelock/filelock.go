// Package filelock serialises writers of shared output directories and
// replaces files atomically, so a reader never observes a half-written report.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultRetryDelay is the polling interval used by LockContext.
const DefaultRetryDelay = 50 * time.Millisecond

// FileLock is an exclusive advisory lock backed by a lock file.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// New creates a lock on path. The lock file is created on first use.
func New(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// LockContext polls for the lock until it is held or ctx is done.
func (fl *FileLock) LockContext(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory for %s: %w", fl.path, err)
	}
	locked, err := fl.flock.TryLockContext(ctx, DefaultRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock on %s", fl.path)
	}
	return nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// WithLock runs fn while holding the lock at lockPath.
func WithLock(ctx context.Context, lockPath string, fn func() error) error {
	lock := New(lockPath)
	if err := lock.LockContext(ctx); err != nil {
		return err
	}
	defer lock.Unlock()

	return fn()
}

// AtomicWrite replaces path with data. The content goes to a temp file in
// the target directory first and is renamed into place, so the previous
// file survives any failure.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	committed = true
	return nil
}
