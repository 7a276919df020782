package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotswap-labs/hotswapd/internal/engine"
	"github.com/hotswap-labs/hotswapd/internal/health"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// seedOrphan persists an execution as a crashed instance would have
// left it: status and stage history written, nobody holding the lock.
func seedOrphan(t *testing.T, h *harness, exec *model.DeploymentExecution) {
	t.Helper()
	now := time.Now().UTC()
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	exec.CreatedAt = now
	exec.UpdatedAt = now
	require.NoError(t, h.store.Create(context.Background(), exec))
}

func TestRecoverRollsBackInterruptedNonRepeatableStage(t *testing.T) {
	h := newHarness(t, engine.Config{LockTimeout: 50 * time.Millisecond})

	started := time.Now().UTC().Add(-time.Minute)
	ended := started.Add(time.Second)
	exec := &model.DeploymentExecution{
		Module:         "payments",
		CurrentVersion: "1.0.0",
		TargetVersion:  "2.0.0",
		Environment:    "prod",
		Strategy:       model.StrategyBlueGreen,
		Config:         fastConfig(),
		Status:         model.ExecutionRunning,
		CurrentStep:    1,
		Plan: model.RolloutPlan{Steps: []model.RolloutStep{
			{Name: "provision green at 0%", Kind: model.StepProvision, Allocation: 0, Repeatable: true},
			{Name: "cutover to green", Kind: model.StepCutover, Allocation: 100, Repeatable: false},
		}},
		Stages: []model.PipelineStage{
			{Name: "provision green at 0%", StepIndex: 0, Status: model.StageSucceeded, StartedAt: started, EndedAt: &ended},
			{Name: "cutover to green", StepIndex: 1, Status: model.StageRunning, Allocation: 100, StartedAt: started},
		},
	}
	seedOrphan(t, h, exec)

	require.NoError(t, h.eng.Recover(context.Background()))
	got := h.waitTerminal(t, exec.ID)

	assert.Equal(t, model.ExecutionRolledBack, got.Status)
	assert.Contains(t, got.Reason, "interrupted non-repeatable stage")
	// The half-done cutover is never fired again; only the corrective
	// cutover reaches the executor.
	assert.Equal(t, []string{"cutover back to blue"}, h.fake.ExecutedStages())

	var interrupted *model.PipelineStage
	for i := range got.Stages {
		if got.Stages[i].StepIndex == 1 && !got.Stages[i].Rollback {
			interrupted = &got.Stages[i]
		}
	}
	require.NotNil(t, interrupted)
	assert.Equal(t, model.StageFailed, interrupted.Status)
	assert.Equal(t, "recovery", interrupted.Error.Code)
}

func TestRecoverResumesInterruptedRepeatableStage(t *testing.T) {
	h := newHarness(t, engine.Config{LockTimeout: 50 * time.Millisecond})

	cfg := fastConfig()
	exec := &model.DeploymentExecution{
		Module:         "payments",
		CurrentVersion: "1.0.0",
		TargetVersion:  "2.0.0",
		Environment:    "prod",
		Strategy:       model.StrategyCanary,
		Config:         cfg,
		Status:         model.ExecutionRunning,
		CurrentStep:    0,
		Plan: model.RolloutPlan{Steps: []model.RolloutStep{
			{Name: "shift 50% traffic", Kind: model.StepShift, Allocation: 50,
				ObservationWindow: cfg.ObservationWindow, PollInterval: cfg.PollInterval,
				Thresholds: cfg.Thresholds, Repeatable: true},
			{Name: "shift 100% traffic", Kind: model.StepShift, Allocation: 100,
				ObservationWindow: cfg.ObservationWindow, PollInterval: cfg.PollInterval,
				Thresholds: cfg.Thresholds, Repeatable: true},
		}},
		Stages: []model.PipelineStage{
			{Name: "shift 50% traffic", StepIndex: 0, Status: model.StageRunning, Allocation: 50, StartedAt: time.Now().UTC()},
		},
	}
	seedOrphan(t, h, exec)

	require.NoError(t, h.eng.Recover(context.Background()))
	got := h.waitTerminal(t, exec.ID)

	assert.Equal(t, model.ExecutionSucceeded, got.Status)
	// The 50% shift already happened; recovery re-observes it and moves
	// straight on to the next step.
	assert.Equal(t, []string{"shift 100% traffic"}, h.fake.ExecutedStages())
	assert.Equal(t, len(got.Plan.Steps), got.CurrentStep)
}

func TestRecoverRollsBackRepeatableStageOnBreach(t *testing.T) {
	h := newHarness(t, engine.Config{LockTimeout: 50 * time.Millisecond}, func(_ *harness, d *engine.Deps) {
		d.Oracle = health.NewStaticOracle(breach())
	})

	cfg := fastConfig()
	exec := &model.DeploymentExecution{
		Module:         "payments",
		CurrentVersion: "1.0.0",
		TargetVersion:  "2.0.0",
		Environment:    "prod",
		Strategy:       model.StrategyCanary,
		Config:         cfg,
		Status:         model.ExecutionRunning,
		CurrentStep:    0,
		Plan: model.RolloutPlan{Steps: []model.RolloutStep{
			{Name: "shift 50% traffic", Kind: model.StepShift, Allocation: 50,
				ObservationWindow: cfg.ObservationWindow, PollInterval: cfg.PollInterval,
				Thresholds: cfg.Thresholds, Repeatable: true},
			{Name: "shift 100% traffic", Kind: model.StepShift, Allocation: 100, Repeatable: true},
		}},
		Stages: []model.PipelineStage{
			{Name: "shift 50% traffic", StepIndex: 0, Status: model.StageRunning, Allocation: 50, StartedAt: time.Now().UTC()},
		},
	}
	seedOrphan(t, h, exec)

	require.NoError(t, h.eng.Recover(context.Background()))
	got := h.waitTerminal(t, exec.ID)

	assert.Equal(t, model.ExecutionRolledBack, got.Status)
	// First level breached: revert to zero.
	assert.Equal(t, []int{0}, h.fake.Allocations())
}

func TestRecoverSkipsExecutionWithLiveOwner(t *testing.T) {
	h := newHarness(t, engine.Config{LockTimeout: 50 * time.Millisecond})

	exec := &model.DeploymentExecution{
		Module:         "payments",
		CurrentVersion: "1.0.0",
		TargetVersion:  "2.0.0",
		Environment:    "prod",
		Strategy:       model.StrategyDirect,
		Config:         fastConfig(),
		Status:         model.ExecutionRunning,
		Plan: model.RolloutPlan{Steps: []model.RolloutStep{
			{Name: "cutover to 100%", Kind: model.StepCutover, Allocation: 100},
		}},
	}
	seedOrphan(t, h, exec)

	// Another instance still holds a valid lease on the resource.
	owner, err := h.locks.Acquire(context.Background(), exec.LockKey(), 10*time.Second, 0)
	require.NoError(t, err)
	defer h.locks.Release(context.Background(), owner)

	require.NoError(t, h.eng.Recover(context.Background()))
	h.eng.Wait()

	got, err := h.store.Load(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionRunning, got.Status)
	assert.Empty(t, h.fake.ExecutedStages())
}

func TestRecoverReArmsApprovalGate(t *testing.T) {
	h := newHarness(t, engine.Config{LockTimeout: 50 * time.Millisecond})

	cfg := fastConfig()
	cfg.RequireApproval = true
	exec := &model.DeploymentExecution{
		Module:         "payments",
		CurrentVersion: "1.0.0",
		TargetVersion:  "2.0.0",
		Environment:    "prod",
		Strategy:       model.StrategyDirect,
		Config:         cfg,
		Status:         model.ExecutionWaitingForApproval,
		CurrentStep:    0,
		Plan: model.RolloutPlan{Steps: []model.RolloutStep{
			{Name: "cutover to 100%", Kind: model.StepCutover, Allocation: 100,
				ObservationWindow: cfg.ObservationWindow, PollInterval: cfg.PollInterval,
				Thresholds: cfg.Thresholds, RequiresApproval: true},
		}},
		Stages: []model.PipelineStage{
			{Name: "await approval: cutover to 100%", StepIndex: -1, Status: model.StageWaitingForApproval, StartedAt: time.Now().UTC()},
		},
	}
	seedOrphan(t, h, exec)

	require.NoError(t, h.eng.Recover(context.Background()))

	// The stale gate becomes a fresh one with a fresh deadline.
	h.waitStatus(t, exec.ID, model.ExecutionWaitingForApproval)
	require.Eventually(t, func() bool {
		return h.eng.Approve(exec.ID, "sre@example.com") == nil
	}, 5*time.Second, 5*time.Millisecond)

	got := h.waitTerminal(t, exec.ID)
	assert.Equal(t, model.ExecutionSucceeded, got.Status)

	var skipped, passed bool
	for _, st := range got.Stages {
		if st.StepIndex == -1 && st.Status == model.StageSkipped {
			skipped = true
		}
		if st.StepIndex == -1 && st.Status == model.StageSucceeded {
			passed = true
		}
	}
	assert.True(t, skipped, "stale gate should be marked skipped")
	assert.True(t, passed, "re-armed gate should be recorded as passed")
}
