package engine

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/internal/metrics"
	"github.com/hotswap-labs/hotswapd/internal/store"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// errHalt means this engine instance must stop acting on the execution
// immediately: its stored copy is stale or its lease is gone.
var errHalt = errors.New("engine: halted")

const (
	eventStart    = "start"
	eventHold     = "hold"
	eventApprove  = "approve"
	eventResume   = "resume"
	eventComplete = "complete"
	eventFail     = "fail"
	eventRollBack = "roll_back"
)

// newMachine builds the execution state machine. States mirror the
// persisted status values so a machine can be rebuilt from storage at
// the exact state an execution was left in.
func (e *Engine) newMachine(exec *model.DeploymentExecution) *fsm.FSM {
	return fsm.NewFSM(
		string(exec.Status),
		fsm.Events{
			{Name: eventStart, Src: []string{string(model.ExecutionPending)}, Dst: string(model.ExecutionRunning)},
			{Name: eventHold, Src: []string{string(model.ExecutionRunning)}, Dst: string(model.ExecutionWaitingForApproval)},
			{Name: eventApprove, Src: []string{string(model.ExecutionWaitingForApproval)}, Dst: string(model.ExecutionRunning)},
			{Name: eventResume, Src: []string{string(model.ExecutionWaitingForApproval)}, Dst: string(model.ExecutionRunning)},
			{Name: eventComplete, Src: []string{string(model.ExecutionRunning)}, Dst: string(model.ExecutionSucceeded)},
			{Name: eventFail, Src: []string{
				string(model.ExecutionPending),
				string(model.ExecutionRunning),
				string(model.ExecutionWaitingForApproval),
			}, Dst: string(model.ExecutionFailed)},
			{Name: eventRollBack, Src: []string{
				string(model.ExecutionRunning),
				string(model.ExecutionWaitingForApproval),
			}, Dst: string(model.ExecutionRolledBack)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				e.logger.Info("execution transition",
					zap.String("execution", exec.ID.String()),
					zap.String("event", ev.Event),
					zap.String("from", ev.Src),
					zap.String("to", ev.Dst),
				)
			},
		},
	)
}

// transition fires an FSM event, mirrors the new state onto the
// execution, persists it, and notifies. The state machine guards
// against illegal jumps; an invalid event here is a programming error
// and is surfaced loudly.
func (e *Engine) transition(m *fsm.FSM, exec *model.DeploymentExecution, event, reason string) error {
	if err := m.Event(context.Background(), event); err != nil {
		e.logger.Error("illegal state transition", zap.Error(err),
			zap.String("execution", exec.ID.String()),
			zap.String("event", event),
		)
		return err
	}
	exec.Status = model.ExecutionStatus(m.Current())
	if reason != "" {
		exec.Reason = reason
	}
	if err := e.persist(exec); err != nil {
		return err
	}
	e.notifier.StatusChanged(exec.ID, exec.Status, exec.Reason)
	if exec.Status.Terminal() && metrics.ExecutionsTotal != nil {
		metrics.ExecutionsTotal.WithLabelValues(string(exec.Strategy), string(exec.Status)).Inc()
	}
	return nil
}

// persist writes the execution back. A revision conflict means another
// instance wrote it despite the lock; this instance stops acting and
// escalates instead of fighting over the record.
func (e *Engine) persist(exec *model.DeploymentExecution) error {
	exec.UpdatedAt = nowUTC()
	err := e.store.Save(context.Background(), exec)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrConflict) {
		e.logger.Error("concurrent write on execution, halting",
			zap.String("execution", exec.ID.String()),
		)
		exec.Status = model.ExecutionFailed
		exec.Reason = model.ReasonStoreConflict
		e.notifier.StatusChanged(exec.ID, exec.Status, exec.Reason)
		return errHalt
	}
	return err
}
