package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotswap-labs/hotswapd/internal/store"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

func newExecution(module, env string, status model.ExecutionStatus, created time.Time) *model.DeploymentExecution {
	return &model.DeploymentExecution{
		ID:            uuid.New(),
		Module:        module,
		Environment:   env,
		TargetVersion: "2.0.0",
		Strategy:      model.StrategyDirect,
		Status:        status,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestMemoryCreateAndLoad(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	exec := newExecution("payments", "prod", model.ExecutionPending, time.Now())
	require.NoError(t, st.Create(ctx, exec))
	assert.EqualValues(t, 1, exec.Revision)

	got, err := st.Load(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, model.ExecutionPending, got.Status)

	// Loaded copies are detached from the store's state.
	got.Status = model.ExecutionFailed
	again, err := st.Load(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionPending, again.Status)
}

func TestMemoryLoadUnknown(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := st.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemorySaveBumpsRevision(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	exec := newExecution("payments", "prod", model.ExecutionPending, time.Now())
	require.NoError(t, st.Create(ctx, exec))

	exec.Status = model.ExecutionRunning
	require.NoError(t, st.Save(ctx, exec))
	assert.EqualValues(t, 2, exec.Revision)

	got, err := st.Load(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionRunning, got.Status)
	assert.EqualValues(t, 2, got.Revision)
}

func TestMemorySaveRevisionConflict(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	exec := newExecution("payments", "prod", model.ExecutionPending, time.Now())
	require.NoError(t, st.Create(ctx, exec))

	a, err := st.Load(ctx, exec.ID)
	require.NoError(t, err)
	b, err := st.Load(ctx, exec.ID)
	require.NoError(t, err)

	a.Status = model.ExecutionRunning
	require.NoError(t, st.Save(ctx, a))

	// b still carries the revision a already consumed.
	b.Status = model.ExecutionFailed
	assert.ErrorIs(t, st.Save(ctx, b), store.ErrConflict)

	got, err := st.Load(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionRunning, got.Status)
}

func TestMemorySaveUnknown(t *testing.T) {
	st := store.NewMemoryStore()
	exec := newExecution("payments", "prod", model.ExecutionPending, time.Now())
	assert.ErrorIs(t, st.Save(context.Background(), exec), store.ErrNotFound)
}

func TestMemoryListOrderedByCreation(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	second := newExecution("b", "prod", model.ExecutionPending, base.Add(time.Minute))
	first := newExecution("a", "prod", model.ExecutionPending, base)
	require.NoError(t, st.Create(ctx, second))
	require.NoError(t, st.Create(ctx, first))

	all, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func TestMemoryListUnfinished(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	running := newExecution("a", "prod", model.ExecutionRunning, now)
	waiting := newExecution("b", "prod", model.ExecutionWaitingForApproval, now)
	done := newExecution("c", "prod", model.ExecutionSucceeded, now)
	failed := newExecution("d", "prod", model.ExecutionFailed, now)
	for _, e := range []*model.DeploymentExecution{running, waiting, done, failed} {
		require.NoError(t, st.Create(ctx, e))
	}

	open, err := st.ListUnfinished(ctx)
	require.NoError(t, err)
	ids := map[uuid.UUID]bool{}
	for _, e := range open {
		ids[e.ID] = true
	}
	assert.Len(t, open, 2)
	assert.True(t, ids[running.ID])
	assert.True(t, ids[waiting.ID])
}
