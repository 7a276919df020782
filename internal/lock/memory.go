package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const acquirePollInterval = 10 * time.Millisecond

type leaseRow struct {
	owner     string
	leaseID   string
	expiresAt time.Time
}

// MemoryProvider is a single-process Coordinator. It backs tests and
// dev mode; cross-process deployments use PostgresProvider.
type MemoryProvider struct {
	mu    sync.Mutex
	held  map[string]*leaseRow
	owner string
	now   func() time.Time
}

func NewMemoryProvider(owner string) *MemoryProvider {
	return &MemoryProvider{
		held:  make(map[string]*leaseRow),
		owner: owner,
		now:   time.Now,
	}
}

func (p *MemoryProvider) Acquire(ctx context.Context, key string, lease, timeout time.Duration) (*Handle, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	deadline := p.now().Add(timeout)
	ticker := time.NewTicker(acquirePollInterval)
	defer ticker.Stop()

	for {
		if h := p.tryAcquire(key, lease); h != nil {
			return h, nil
		}
		if !p.now().Before(deadline) {
			return nil, ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *MemoryProvider) tryAcquire(key string, lease time.Duration) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if row, ok := p.held[key]; ok && row.expiresAt.After(now) {
		return nil
	}

	row := &leaseRow{
		owner:     p.owner,
		leaseID:   uuid.NewString(),
		expiresAt: now.Add(lease),
	}
	p.held[key] = row
	return &Handle{
		Key:        key,
		Owner:      p.owner,
		LeaseID:    row.leaseID,
		AcquiredAt: now,
		ExpiresAt:  row.expiresAt,
	}
}

func (p *MemoryProvider) Renew(_ context.Context, h *Handle, lease time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.held[h.Key]
	if !ok || row.leaseID != h.LeaseID || !row.expiresAt.After(p.now()) {
		return ErrLeaseLost
	}
	row.expiresAt = p.now().Add(lease)
	h.ExpiresAt = row.expiresAt
	return nil
}

// Release drops the lock if the handle still owns it. Releasing twice,
// or releasing an expired handle, succeeds without touching another
// holder's lease.
func (p *MemoryProvider) Release(_ context.Context, h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if row, ok := p.held[h.Key]; ok && row.leaseID == h.LeaseID {
		delete(p.held, h.Key)
	}
	return nil
}
