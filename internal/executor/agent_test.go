package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/internal/executor"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

func testStage() executor.Stage {
	return executor.Stage{
		ExecutionID: uuid.New(),
		Module:      "payments",
		Version:     "2.0.0",
		Environment: "prod",
		Step:        model.RolloutStep{Name: "cutover to 100%", Kind: model.StepCutover, Allocation: 100},
	}
}

func TestAgentExecutorExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/environments/prod/stages", r.URL.Path)
		var got executor.Stage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "payments", got.Module)
		assert.Equal(t, 100, got.Step.Allocation)
		_ = json.NewEncoder(w).Encode(executor.Result{Success: true})
	}))
	defer srv.Close()

	e := executor.NewAgentExecutor(srv.URL, zap.NewNop())
	res, err := e.Execute(context.Background(), testStage())
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestAgentExecutorRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(executor.Result{Success: false, Detail: "node n3 failed drain"})
	}))
	defer srv.Close()

	e := executor.NewAgentExecutor(srv.URL, zap.NewNop())
	res, err := e.Execute(context.Background(), testStage())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "node n3 failed drain", res.Detail)
}

func TestAgentExecutorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := executor.NewAgentExecutor(srv.URL, zap.NewNop())
	_, err := e.Execute(context.Background(), testStage())
	assert.ErrorContains(t, err, "500")
}

func TestFakeExecutorScripting(t *testing.T) {
	f := executor.NewFakeExecutor()
	f.FailStages["cutover to 100%"] = 1
	ctx := context.Background()

	res, err := f.Execute(ctx, testStage())
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = f.Execute(ctx, testStage())
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, []string{"cutover to 100%", "cutover to 100%"}, f.ExecutedStages())
	assert.Equal(t, []int{100, 100}, f.Allocations())
}
