package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/internal/executor"
	"github.com/hotswap-labs/hotswapd/internal/lock"
	"github.com/hotswap-labs/hotswapd/internal/metrics"
	"github.com/hotswap-labs/hotswapd/internal/strategy"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

func nowUTC() time.Time { return time.Now().UTC() }

// errCanceled distinguishes cooperative cancellation from stage
// failures inside the run loop.
var errCanceled = errors.New("engine: execution canceled")

// drive runs one execution to a terminal state. held is non-nil when the
// recovery sweep already owns the resource lock.
func (e *Engine) drive(ctx context.Context, exec *model.DeploymentExecution, held *lock.Handle) {
	log := e.logger.With(
		zap.String("execution", exec.ID.String()),
		zap.String("module", exec.Module),
		zap.String("environment", exec.Environment),
		zap.String("strategy", string(exec.Strategy)),
	)
	m := e.newMachine(exec)

	handle := held
	if handle == nil {
		waitStart := time.Now()
		h, err := e.locks.Acquire(ctx, exec.LockKey(), e.cfg.LockLease, e.cfg.LockTimeout)
		if metrics.LockWaitSeconds != nil {
			metrics.LockWaitSeconds.Observe(time.Since(waitStart).Seconds())
		}
		if err != nil {
			reason := model.ReasonContended
			if ctx.Err() != nil {
				reason = model.ReasonCanceled
			}
			log.Warn("resource lock not acquired", zap.Error(err))
			_ = e.transition(m, exec, eventFail, reason)
			return
		}
		handle = h
	}
	defer func() { _ = e.locks.Release(context.Background(), handle) }()

	// Keepalive renews the lease while we work. A lost lease means
	// another instance may own the resource: further action, including
	// rollback, is unsafe.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	var leaseLost atomic.Bool
	stopRenew := e.keepAlive(handle, func() {
		leaseLost.Store(true)
		cancelRun()
	})
	defer stopRenew()

	if metrics.ExecutionsActive != nil {
		metrics.ExecutionsActive.WithLabelValues(exec.Environment).Inc()
		defer metrics.ExecutionsActive.WithLabelValues(exec.Environment).Dec()
	}

	strat, err := strategy.New(exec.Strategy)
	if err != nil {
		_ = e.transition(m, exec, eventFail, err.Error())
		return
	}

	if exec.Status == model.ExecutionPending {
		if e.transition(m, exec, eventStart, "") != nil {
			return
		}
	} else if ok := e.resumePosition(runCtx, m, exec, strat, log); !ok {
		return
	}

	for i := exec.CurrentStep; i < len(exec.Plan.Steps); i++ {
		step := exec.Plan.Steps[i]
		exec.CurrentStep = i
		if e.persist(exec) != nil {
			return
		}

		if runCtx.Err() != nil {
			e.abort(m, exec, strat, &leaseLost, log)
			return
		}

		if step.RequiresApproval {
			approved, err := e.awaitApproval(runCtx, m, exec, step, log)
			if err != nil {
				if errors.Is(err, errCanceled) {
					e.abort(m, exec, strat, &leaseLost, log)
				}
				return
			}
			if !approved {
				return // terminal Failed already recorded
			}
		}

		si := e.beginStage(exec, step, i, false)
		if e.persist(exec) != nil {
			return
		}

		if err := e.executeStage(runCtx, exec, si, step, false); err != nil {
			e.finishStage(exec, si, model.StageFailed, "executor", err)
			e.abortOrRollback(m, exec, strat, &leaseLost, fmt.Sprintf("stage %q failed: %v", step.Name, err), log)
			return
		}

		if err := e.observe(runCtx, exec, si, step); err != nil {
			code := "health-breach"
			if errors.Is(err, errCanceled) {
				code = "canceled"
			}
			e.finishStage(exec, si, model.StageFailed, code, err)
			e.abortOrRollback(m, exec, strat, &leaseLost, err.Error(), log)
			return
		}

		e.finishStage(exec, si, model.StageSucceeded, "", nil)
		if e.persist(exec) != nil {
			return
		}
		e.notifier.Progress(exec.ID, step.Name, step.Allocation)
		log.Info("stage passed",
			zap.String("stage", step.Name),
			zap.Int("allocation", step.Allocation),
		)
	}

	exec.CurrentStep = len(exec.Plan.Steps)
	_ = e.transition(m, exec, eventComplete, "")
	log.Info("execution succeeded")
}

// keepAlive renews the lease at a third of its duration until stopped.
func (e *Engine) keepAlive(handle *lock.Handle, onLost func()) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(e.cfg.LockLease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.locks.Renew(ctx, handle, e.cfg.LockLease); err != nil {
					if errors.Is(err, lock.ErrLeaseLost) {
						e.logger.Error("lock lease lost", zap.String("key", handle.Key), zap.Error(err))
						onLost()
						return
					}
					e.logger.Warn("lease renewal error", zap.String("key", handle.Key), zap.Error(err))
				}
			}
		}
	}()
	return cancel
}

// abort ends a canceled run: rollback when the lease is still ours,
// plain failure when it is not.
func (e *Engine) abort(m *fsm.FSM, exec *model.DeploymentExecution, strat strategy.Strategy, leaseLost *atomic.Bool, log *zap.Logger) {
	if leaseLost.Load() {
		_ = e.transition(m, exec, eventFail, model.ReasonLeaseLost)
		return
	}
	e.rollback(m, exec, strat, model.ReasonCanceled, log)
}

func (e *Engine) abortOrRollback(m *fsm.FSM, exec *model.DeploymentExecution, strat strategy.Strategy, leaseLost *atomic.Bool, reason string, log *zap.Logger) {
	if leaseLost.Load() {
		_ = e.transition(m, exec, eventFail, model.ReasonLeaseLost)
		return
	}
	e.rollback(m, exec, strat, reason, log)
}

// awaitApproval parks the execution at an approval gate. A timeout is a
// rejection, never silent auto-approval; only the pluggable policy may
// wave a gate through.
func (e *Engine) awaitApproval(ctx context.Context, m *fsm.FSM, exec *model.DeploymentExecution, step model.RolloutStep, log *zap.Logger) (bool, error) {
	if e.policy.AutoApprove(ctx, exec, step) {
		log.Info("approval gate auto-approved by policy", zap.String("stage", step.Name))
		return true, nil
	}

	ch := make(chan approvalDecision, 1)
	e.mu.Lock()
	e.approvals[exec.ID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.approvals, exec.ID)
		e.mu.Unlock()
	}()

	si := len(exec.Stages)
	exec.Stages = append(exec.Stages, model.PipelineStage{
		Name:      fmt.Sprintf("await approval: %s", step.Name),
		StepIndex: -1,
		Status:    model.StageWaitingForApproval,
		StartedAt: nowUTC(),
	})
	if err := e.transition(m, exec, eventHold, ""); err != nil {
		return false, err
	}

	timeout := e.cfg.ApprovalTimeout
	if exec.Config.ApprovalTimeout > 0 {
		timeout = exec.Config.ApprovalTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-ch:
		if d.approved {
			e.finishStage(exec, si, model.StageSucceeded, "", nil)
			log.Info("approval granted", zap.String("by", d.by))
			if err := e.transition(m, exec, eventApprove, ""); err != nil {
				return false, err
			}
			return true, nil
		}
		e.finishStage(exec, si, model.StageFailed, "approval",
			fmt.Errorf("rejected by %s: %s", d.by, d.reason))
		_ = e.transition(m, exec, eventFail, model.ReasonApprovalDenied)
		return false, nil
	case <-timer.C:
		e.finishStage(exec, si, model.StageFailed, "approval", errors.New("approval deadline elapsed"))
		_ = e.transition(m, exec, eventFail, model.ReasonApprovalExpired)
		return false, nil
	case <-ctx.Done():
		e.finishStage(exec, si, model.StageFailed, "canceled", ctx.Err())
		return false, errCanceled
	}
}

func (e *Engine) beginStage(exec *model.DeploymentExecution, step model.RolloutStep, stepIndex int, rollback bool) int {
	exec.Stages = append(exec.Stages, model.PipelineStage{
		Name:       step.Name,
		StepIndex:  stepIndex,
		Status:     model.StageRunning,
		Allocation: step.Allocation,
		Rollback:   rollback,
		StartedAt:  nowUTC(),
	})
	return len(exec.Stages) - 1
}

func (e *Engine) finishStage(exec *model.DeploymentExecution, si int, status model.StageStatus, code string, err error) {
	st := &exec.Stages[si]
	ended := nowUTC()
	st.EndedAt = &ended
	st.Status = status
	if err != nil {
		st.Error = model.StatusError{Code: code, Message: err.Error()}
	}
	if metrics.StageDuration != nil {
		metrics.StageDuration.WithLabelValues(st.Name).Observe(ended.Sub(st.StartedAt).Seconds())
	}
}

// executeStage performs the work of one stage with bounded retries. The
// executor itself never retries.
func (e *Engine) executeStage(ctx context.Context, exec *model.DeploymentExecution, si int, step model.RolloutStep, rollback bool) error {
	if step.Kind == model.StepVerify {
		if e.resolver == nil {
			return nil
		}
		digest, err := e.resolver.ResolveDigest(ctx, exec.Module, exec.TargetVersion)
		if err != nil {
			return fmt.Errorf("artifact verification: %w", err)
		}
		exec.ArtifactDigest = digest
		exec.Stages[si].Allocation = 0
		return nil
	}

	stage := executor.Stage{
		ExecutionID: exec.ID,
		Module:      exec.Module,
		Version:     exec.TargetVersion,
		Digest:      exec.ArtifactDigest,
		Environment: exec.Environment,
		Step:        step,
		Rollback:    rollback,
	}
	if rollback {
		stage.Version = exec.CurrentVersion
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxStageAttempts; attempt++ {
		res, err := e.exec.Execute(ctx, stage)
		if err == nil && res.Success {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("stage rejected: %s", res.Detail)
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// observe holds the execution at the current allocation for the step's
// observation window, polling the oracle. Cancellation is noticed
// within one poll interval. An unreachable oracle fails the step; the
// engine never assumes health.
func (e *Engine) observe(ctx context.Context, exec *model.DeploymentExecution, si int, step model.RolloutStep) error {
	if step.ObservationWindow <= 0 {
		return nil
	}
	pollEvery := step.PollInterval
	if pollEvery <= 0 {
		pollEvery = time.Second
	}
	deadline := time.Now().Add(step.ObservationWindow)
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", errCanceled, ctx.Err())
		case <-ticker.C:
			snap, err := e.oracle.Snapshot(ctx, exec.Environment, step.ObservationWindow)
			if err != nil {
				return fmt.Errorf("health oracle unavailable: %w", err)
			}
			exec.Stages[si].Health = snap
			if breach := snap.Breaches(step.Thresholds); breach != "" {
				return fmt.Errorf("health threshold breached: %s", breach)
			}
			if !time.Now().Before(deadline) {
				return nil
			}
		}
	}
}

// executedForwardSteps reconstructs, from the persisted stage history,
// the plan steps the executor actually ran. Works identically for a
// live run and for one rebuilt after a crash.
func executedForwardSteps(exec *model.DeploymentExecution) []model.RolloutStep {
	seen := make(map[int]bool)
	var out []model.RolloutStep
	for _, st := range exec.Stages {
		if st.Rollback || st.StepIndex < 0 || st.StepIndex >= len(exec.Plan.Steps) {
			continue
		}
		step := exec.Plan.Steps[st.StepIndex]
		if step.Kind == model.StepVerify {
			continue // nothing to undo
		}
		switch st.Status {
		case model.StageRunning, model.StageSucceeded, model.StageFailed:
			if !seen[st.StepIndex] {
				seen[st.StepIndex] = true
				out = append(out, step)
			}
		}
	}
	return out
}

// rollback replays the allocation sequence downward. It runs under its
// own context: a canceled run must still be able to revert. A failed
// rollback is fatal and escalated, never silently retried.
func (e *Engine) rollback(m *fsm.FSM, exec *model.DeploymentExecution, strat strategy.Strategy, reason string, log *zap.Logger) {
	executed := executedForwardSteps(exec)
	if len(executed) == 0 {
		// Nothing moved yet; terminal state only.
		_ = e.transition(m, exec, eventRollBack, reason)
		return
	}

	plan, err := strat.RollbackPlan(exec.Config, executed)
	if err != nil {
		log.Error("rollback planning failed, escalating", zap.Error(err))
		_ = e.transition(m, exec, eventFail, model.ReasonRollbackFailed)
		return
	}

	rctx, cancel := context.WithTimeout(context.Background(), e.cfg.RollbackTimeout)
	defer cancel()

	log.Warn("rolling back", zap.String("reason", reason), zap.Int("steps", len(plan.Steps)))
	for _, rb := range plan.Steps {
		si := e.beginStage(exec, rb, -1, true)
		if e.persist(exec) != nil {
			return
		}

		stepCtx, stepCancel := rctx, context.CancelFunc(func() {})
		if exec.Strategy == model.StrategyBlueGreen && rb.Kind == model.StepCutover {
			stepCtx, stepCancel = context.WithTimeout(rctx, strategy.RollbackBudget(exec.Config))
		}

		err := e.executeStage(stepCtx, exec, si, rb, true)
		stepCancel()
		if err != nil {
			e.finishStage(exec, si, model.StageFailed, "rollback", err)
			log.Error("rollback failed, escalating for manual intervention", zap.Error(err))
			_ = e.transition(m, exec, eventFail, model.ReasonRollbackFailed)
			return
		}
		e.finishStage(exec, si, model.StageSucceeded, "", nil)
		if e.persist(exec) != nil {
			return
		}
		e.notifier.Progress(exec.ID, rb.Name, rb.Allocation)
	}

	_ = e.transition(m, exec, eventRollBack, reason)
	log.Info("rollback complete", zap.String("reason", reason))
}
