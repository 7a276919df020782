// Package store persists deployment executions. Every write carries the
// full stage history so an execution can be reconstructed from storage
// alone after a crash.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

var (
	ErrNotFound = errors.New("store: execution not found")
	// ErrConflict means another writer saved the execution since it was
	// loaded. The engine treats this as fatal for its own copy: a lock
	// leak let two instances act on one execution.
	ErrConflict = errors.New("store: revision conflict")
)

type Store interface {
	Create(ctx context.Context, exec *model.DeploymentExecution) error
	Load(ctx context.Context, id uuid.UUID) (*model.DeploymentExecution, error)
	// Save writes the execution if its Revision still matches the stored
	// one, then bumps Revision. Returns ErrConflict otherwise.
	Save(ctx context.Context, exec *model.DeploymentExecution) error
	List(ctx context.Context) ([]*model.DeploymentExecution, error)
	// ListUnfinished returns executions in a non-terminal status; the
	// recovery sweep scans these on startup.
	ListUnfinished(ctx context.Context) ([]*model.DeploymentExecution, error)
}
