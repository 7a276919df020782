// Package lock provides named, lease-based, mutually exclusive locks
// shared by all orchestrator instances. A lease expires on its own when
// the holder dies, so a crashed engine never wedges a resource forever.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyKey is returned before any lock attempt when the resource
	// key is blank.
	ErrEmptyKey = errors.New("lock: resource key is empty")
	// ErrAcquireTimeout is returned when the lock was not granted within
	// the caller's timeout.
	ErrAcquireTimeout = errors.New("lock: acquire timed out")
	// ErrLeaseLost is returned by Renew when the lease already expired
	// or the lock was taken over. The caller must treat in-flight work
	// as unsafe and abort.
	ErrLeaseLost = errors.New("lock: lease lost")
)

// Handle represents ownership of a named resource lock.
type Handle struct {
	Key        string
	Owner      string
	LeaseID    string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Coordinator is the distributed lock contract. Acquire blocks the
// calling goroutine until the lock is granted, timeout elapses, or ctx
// is canceled. Release is idempotent. Renew after expiry reports
// ErrLeaseLost.
type Coordinator interface {
	Acquire(ctx context.Context, key string, lease, timeout time.Duration) (*Handle, error)
	Renew(ctx context.Context, h *Handle, lease time.Duration) error
	Release(ctx context.Context, h *Handle) error
}
