package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/internal/lock"
	"github.com/hotswap-labs/hotswapd/internal/strategy"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// Recover scans for executions left in Running or WaitingForApproval by
// a dead engine instance. The lock decides ownership: if the lease is
// still valid the owner is alive and the execution is left alone;
// otherwise this instance takes the lock and resumes driving from the
// last persisted stage.
func (e *Engine) Recover(ctx context.Context) error {
	execs, err := e.store.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}

	for _, exec := range execs {
		if exec.Status != model.ExecutionRunning && exec.Status != model.ExecutionWaitingForApproval {
			continue
		}
		h, err := e.locks.Acquire(ctx, exec.LockKey(), e.cfg.LockLease, e.cfg.LockTimeout)
		if errors.Is(err, lock.ErrAcquireTimeout) {
			// Lease still valid: a live instance owns this execution.
			continue
		}
		if err != nil {
			e.logger.Error("recovery lock acquire failed", zap.String("execution", exec.ID.String()), zap.Error(err))
			continue
		}
		e.logger.Info("recovering orphaned execution",
			zap.String("execution", exec.ID.String()),
			zap.String("status", string(exec.Status)),
			zap.Int("step", exec.CurrentStep),
		)
		e.start(exec, h)
	}
	return nil
}

// resumePosition re-establishes a recovered execution's place in its
// plan before the main loop takes over. Returns false when the run has
// already been driven to a terminal state here.
func (e *Engine) resumePosition(ctx context.Context, m *fsm.FSM, exec *model.DeploymentExecution, strat strategy.Strategy, log *zap.Logger) bool {
	// A parked approval gate does not survive the owner's death; the
	// main loop re-arms it with a fresh deadline.
	if exec.Status == model.ExecutionWaitingForApproval {
		if si := lastOpenStage(exec); si >= 0 && exec.Stages[si].Status == model.StageWaitingForApproval {
			e.finishStage(exec, si, model.StageSkipped, "recovery", nil)
		}
		if e.transition(m, exec, eventResume, "") != nil {
			return false
		}
		return true
	}

	idx := exec.CurrentStep
	if idx >= len(exec.Plan.Steps) {
		return true // crashed after the last stage; loop falls through to complete
	}
	si := lastOpenStage(exec)
	if si < 0 || exec.Stages[si].StepIndex != idx {
		return true // crashed between stages; re-enter the loop at idx
	}

	step := exec.Plan.Steps[idx]

	// Killed mid-stage with unknown outcome. Policy favors rollback over
	// a blind re-run unless the stage declared itself repeatable.
	if !step.Repeatable {
		e.finishStage(exec, si, model.StageFailed, "recovery",
			errors.New("interrupted non-repeatable stage"))
		e.rollback(m, exec, strat, "interrupted non-repeatable stage", log)
		return false
	}

	log.Info("re-checking interrupted repeatable stage", zap.String("stage", step.Name))
	if err := e.observe(ctx, exec, si, step); err != nil {
		code := "health-breach"
		if errors.Is(err, errCanceled) {
			code = "canceled"
		}
		e.finishStage(exec, si, model.StageFailed, code, err)
		e.rollback(m, exec, strat, err.Error(), log)
		return false
	}
	e.finishStage(exec, si, model.StageSucceeded, "", nil)
	if e.persist(exec) != nil {
		return false
	}
	e.notifier.Progress(exec.ID, step.Name, step.Allocation)
	exec.CurrentStep = idx + 1
	return true
}

// lastOpenStage returns the index of the newest stage that has not
// reached a terminal status, or -1.
func lastOpenStage(exec *model.DeploymentExecution) int {
	for i := len(exec.Stages) - 1; i >= 0; i-- {
		switch exec.Stages[i].Status {
		case model.StageRunning, model.StageWaitingForApproval:
			return i
		}
	}
	return -1
}
