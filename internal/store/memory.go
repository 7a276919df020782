package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// MemoryStore keeps executions in a map. Dev and test use; the copies
// handed out are deep so callers never share state with the store.
type MemoryStore struct {
	mu    sync.Mutex
	execs map[uuid.UUID]*model.DeploymentExecution
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{execs: make(map[uuid.UUID]*model.DeploymentExecution)}
}

func clone(e *model.DeploymentExecution) *model.DeploymentExecution {
	data, _ := json.Marshal(e)
	var out model.DeploymentExecution
	_ = json.Unmarshal(data, &out)
	return &out
}

func (s *MemoryStore) Create(_ context.Context, exec *model.DeploymentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec.Revision = 1
	s.execs[exec.ID] = clone(exec)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id uuid.UUID) (*model.DeploymentExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.execs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

func (s *MemoryStore) Save(_ context.Context, exec *model.DeploymentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.execs[exec.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != exec.Revision {
		return ErrConflict
	}
	exec.Revision++
	s.execs[exec.ID] = clone(exec)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*model.DeploymentExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.DeploymentExecution, 0, len(s.execs))
	for _, e := range s.execs {
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListUnfinished(ctx context.Context) ([]*model.DeploymentExecution, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if !e.Status.Terminal() {
			out = append(out, e)
		}
	}
	return out, nil
}
