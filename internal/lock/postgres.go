package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresProvider keeps leases in a table so exclusion holds across
// orchestrator processes. Expiry is enforced by comparing against the
// database clock, never the holder's.
type PostgresProvider struct {
	db    *sql.DB
	owner string
}

const lockSchema = `
CREATE TABLE IF NOT EXISTS resource_locks (
    key         TEXT PRIMARY KEY,
    locked_by   TEXT NOT NULL,
    lease_id    UUID NOT NULL,
    locked_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at  TIMESTAMPTZ NOT NULL
)`

func NewPostgresProvider(ctx context.Context, db *sql.DB, owner string) (*PostgresProvider, error) {
	if _, err := db.ExecContext(ctx, lockSchema); err != nil {
		return nil, fmt.Errorf("create resource_locks table: %w", err)
	}
	return &PostgresProvider{db: db, owner: owner}, nil
}

func (p *PostgresProvider) Acquire(ctx context.Context, key string, lease, timeout time.Duration) (*Handle, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(acquirePollInterval)
	defer ticker.Stop()

	for {
		h, err := p.tryAcquire(ctx, key, lease)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryAcquire is a single atomic grab: insert the row, or take over a row
// whose lease already expired. Exactly one contender can win because the
// conditional update runs inside one statement.
func (p *PostgresProvider) tryAcquire(ctx context.Context, key string, lease time.Duration) (*Handle, error) {
	leaseID := uuid.NewString()
	var lockedAt, expiresAt time.Time
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO resource_locks (key, locked_by, lease_id, expires_at)
		VALUES ($1, $2, $3, now() + $4::interval)
		ON CONFLICT (key) DO UPDATE
		SET locked_by = EXCLUDED.locked_by,
		    lease_id  = EXCLUDED.lease_id,
		    locked_at = now(),
		    expires_at = EXCLUDED.expires_at
		WHERE resource_locks.expires_at <= now()
		RETURNING locked_at, expires_at`,
		key, p.owner, leaseID, lease.String(),
	).Scan(&lockedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil // held by someone else, lease still valid
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	return &Handle{
		Key:        key,
		Owner:      p.owner,
		LeaseID:    leaseID,
		AcquiredAt: lockedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

func (p *PostgresProvider) Renew(ctx context.Context, h *Handle, lease time.Duration) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE resource_locks
		SET expires_at = now() + $1::interval
		WHERE key = $2 AND lease_id = $3 AND expires_at > now()`,
		lease.String(), h.Key, h.LeaseID,
	)
	if err != nil {
		return fmt.Errorf("renew lock %q: %w", h.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	h.ExpiresAt = time.Now().Add(lease)
	return nil
}

func (p *PostgresProvider) Release(ctx context.Context, h *Handle) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM resource_locks WHERE key = $1 AND lease_id = $2`,
		h.Key, h.LeaseID,
	)
	if err != nil {
		return fmt.Errorf("release lock %q: %w", h.Key, err)
	}
	return nil
}
