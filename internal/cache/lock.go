package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/corvusflow/rescache/internal/domain"
)

// EntryLock is the named inter-process advisory lock scoped to one
// artifact's (location, version) identity. An in-process mutex is
// layered in front of the flock so goroutines sharing one EntryLock
// value take turns. It is not reentrant: a second Lock on the same
// value blocks until Unlock.
type EntryLock struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewEntryLock returns the lock guarding the sidecar at artifactPath.
func NewEntryLock(artifactPath string) *EntryLock {
	return &EntryLock{path: lockPath(artifactPath)}
}

// Lock blocks until the advisory lock is held, across this process
// and any other holding the same lock file.
func (l *EntryLock) Lock() error {
	l.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: create lock directory: %v", domain.ErrIOFailure, err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: open lock file: %v", domain.ErrIOFailure, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		l.mu.Unlock()
		return fmt.Errorf("%w: flock: %v", domain.ErrIOFailure, err)
	}
	l.f = f
	return nil
}

// Unlock releases the advisory lock. It must follow a successful Lock
// only: a Lock that returns an error has already released everything
// it acquired, so the connect and download phases defer Unlock right
// after Lock succeeds.
func (l *EntryLock) Unlock() {
	if l.f != nil {
		syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
		l.f.Close()
		l.f = nil
	}
	l.mu.Unlock()
}
