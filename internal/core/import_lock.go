package core

// import_lock.go serialises imports against one store handle.
//
// The lock is a one-slot semaphore. A second Import waits up to maxWait for
// the running one to finish, then fails with ErrImportInProgress, so imports
// are never interleaved inside one transaction scope.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrImportInProgress is returned when another import holds the store handle
// and the wait timeout expires.
var ErrImportInProgress = errors.New("another import is already running on this store")

// DefaultLockWait is how long Import waits for a running import to finish.
const DefaultLockWait = 30 * time.Second

// ImportLock guards one store handle. The zero value is not usable; call
// NewImportLock.
type ImportLock struct {
	slot    chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	holder string // import ID of the current holder
	since  time.Time
}

// NewImportLock creates a lock. A maxWait of zero or less never waits: a
// busy lock fails at once with ErrImportInProgress.
func NewImportLock(maxWait time.Duration) *ImportLock {
	return &ImportLock{
		slot:    make(chan struct{}, 1),
		maxWait: maxWait,
	}
}

// Acquire takes the lock for importID, waiting at most maxWait.
// The caller MUST call Release when the import finishes (use defer).
func (l *ImportLock) Acquire(ctx context.Context, importID string) error {
	if l.maxWait <= 0 {
		if !l.TryAcquire(importID) {
			return ErrImportInProgress
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slot <- struct{}{}:
		l.setHolder(importID)
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrImportInProgress
	}
}

// TryAcquire takes the lock without waiting.
func (l *ImportLock) TryAcquire(importID string) bool {
	select {
	case l.slot <- struct{}{}:
		l.setHolder(importID)
		return true
	default:
		return false
	}
}

// Release frees the lock. Must be called exactly once per successful
// Acquire or TryAcquire.
func (l *ImportLock) Release() {
	l.mu.Lock()
	l.holder = ""
	l.since = time.Time{}
	l.mu.Unlock()

	<-l.slot
}

func (l *ImportLock) setHolder(importID string) {
	l.mu.Lock()
	l.holder = importID
	l.since = time.Now()
	l.mu.Unlock()
}

// ImportLockStatus is a snapshot of the lock for monitoring.
type ImportLockStatus struct {
	Held     bool      `json:"held"`
	ImportID string    `json:"import_id,omitempty"`
	Since    time.Time `json:"since,omitempty"`
}

// Status returns the current holder, if any.
func (l *ImportLock) Status() ImportLockStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return ImportLockStatus{
		Held:     l.holder != "",
		ImportID: l.holder,
		Since:    l.since,
	}
}
