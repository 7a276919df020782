package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// PostgresStore persists executions as one row each: indexed columns for
// querying, the full record (plan + stage history) as a JSONB document.
// Save is guarded by a revision column so a stale writer surfaces as
// ErrConflict instead of silently clobbering state.
type PostgresStore struct {
	db *sql.DB
}

const executionsSchema = `
CREATE TABLE IF NOT EXISTS executions (
    id          UUID PRIMARY KEY,
    module      TEXT NOT NULL,
    environment TEXT NOT NULL,
    status      TEXT NOT NULL,
    revision    BIGINT NOT NULL,
    record      JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
)`

func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, executionsSchema); err != nil {
		return nil, fmt.Errorf("create executions table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, exec *model.DeploymentExecution) error {
	exec.Revision = 1
	record, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution %s: %w", exec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, module, environment, status, revision, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exec.ID, exec.Module, exec.Environment, string(exec.Status), exec.Revision,
		record, exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution %s: %w", exec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id uuid.UUID) (*model.DeploymentExecution, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM executions WHERE id = $1`, id,
	).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", id, err)
	}
	var exec model.DeploymentExecution
	if err := json.Unmarshal(record, &exec); err != nil {
		return nil, fmt.Errorf("decode execution %s: %w", id, err)
	}
	return &exec, nil
}

func (s *PostgresStore) Save(ctx context.Context, exec *model.DeploymentExecution) error {
	next := exec.Revision + 1
	prev := exec.Revision
	exec.Revision = next
	record, err := json.Marshal(exec)
	if err != nil {
		exec.Revision = prev
		return fmt.Errorf("marshal execution %s: %w", exec.ID, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $1, revision = $2, record = $3, updated_at = $4
		WHERE id = $5 AND revision = $6`,
		string(exec.Status), next, record, exec.UpdatedAt, exec.ID, prev,
	)
	if err != nil {
		exec.Revision = prev
		return fmt.Errorf("save execution %s: %w", exec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		exec.Revision = prev
		return err
	}
	if n == 0 {
		exec.Revision = prev
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)`, exec.ID,
		).Scan(&exists); err == nil && !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*model.DeploymentExecution, error) {
	return s.query(ctx, `SELECT record FROM executions ORDER BY created_at`)
}

func (s *PostgresStore) ListUnfinished(ctx context.Context) ([]*model.DeploymentExecution, error) {
	return s.query(ctx, `
		SELECT record FROM executions
		WHERE status IN ('pending', 'running', 'waiting_approval')
		ORDER BY created_at`)
}

func (s *PostgresStore) query(ctx context.Context, q string) ([]*model.DeploymentExecution, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []*model.DeploymentExecution
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var exec model.DeploymentExecution
		if err := json.Unmarshal(record, &exec); err != nil {
			return nil, fmt.Errorf("decode execution record: %w", err)
		}
		out = append(out, &exec)
	}
	return out, rows.Err()
}
