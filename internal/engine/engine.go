// Package engine drives deployment executions end to end: it owns the
// state machine, the per-resource lock, strategy planning, stage
// execution, health observation, and rollback. One goroutine drives one
// execution; mutual exclusion across processes is delegated entirely to
// the lock coordinator.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/internal/executor"
	"github.com/hotswap-labs/hotswapd/internal/health"
	"github.com/hotswap-labs/hotswapd/internal/lock"
	"github.com/hotswap-labs/hotswapd/internal/notify"
	"github.com/hotswap-labs/hotswapd/internal/registry"
	"github.com/hotswap-labs/hotswapd/internal/store"
	"github.com/hotswap-labs/hotswapd/internal/strategy"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

type Config struct {
	InstanceID       string
	LockLease        time.Duration
	LockTimeout      time.Duration
	MaxStageAttempts int
	ApprovalTimeout  time.Duration
	// RollbackTimeout bounds the whole corrective sequence; the
	// blue-green cutover budget can tighten it further.
	RollbackTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.InstanceID == "" {
		c.InstanceID = "orchestrator-" + uuid.NewString()[:8]
	}
	if c.LockLease == 0 {
		c.LockLease = 30 * time.Second
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 10 * time.Second
	}
	if c.MaxStageAttempts == 0 {
		c.MaxStageAttempts = 2
	}
	if c.ApprovalTimeout == 0 {
		c.ApprovalTimeout = 15 * time.Minute
	}
	if c.RollbackTimeout == 0 {
		c.RollbackTimeout = 2 * time.Minute
	}
}

// ApprovalPolicy decides whether a gate may pass without a human. The
// default policy never auto-approves; breaking-change detection is a
// pluggable concern, not guessed here.
type ApprovalPolicy interface {
	AutoApprove(ctx context.Context, exec *model.DeploymentExecution, step model.RolloutStep) bool
}

type denyAll struct{}

func (denyAll) AutoApprove(context.Context, *model.DeploymentExecution, model.RolloutStep) bool {
	return false
}

type Deps struct {
	Locks    lock.Coordinator
	Store    store.Store
	Oracle   health.Oracle
	Executor executor.Executor
	Notifier notify.Notifier
	Resolver registry.Resolver // optional; nil disables digest pinning
	Approval ApprovalPolicy    // optional; nil denies auto-approval
	Logger   *zap.Logger
}

type approvalDecision struct {
	approved bool
	by       string
	reason   string
}

type Engine struct {
	cfg      Config
	locks    lock.Coordinator
	store    store.Store
	oracle   health.Oracle
	exec     executor.Executor
	notifier notify.Notifier
	resolver registry.Resolver
	policy   ApprovalPolicy
	logger   *zap.Logger

	mu        sync.Mutex
	approvals map[uuid.UUID]chan approvalDecision
	cancels   map[uuid.UUID]context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, deps Deps) *Engine {
	cfg.applyDefaults()
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Approval == nil {
		deps.Approval = denyAll{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		locks:     deps.Locks,
		store:     deps.Store,
		oracle:    deps.Oracle,
		exec:      deps.Executor,
		notifier:  deps.Notifier,
		resolver:  deps.Resolver,
		policy:    deps.Approval,
		logger:    deps.Logger,
		approvals: make(map[uuid.UUID]chan approvalDecision),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// SubmitRequest is the asynchronous submission contract: validate, plan,
// persist, return the id; the pipeline runs out of band.
type SubmitRequest struct {
	Module         string               `json:"module"`
	CurrentVersion string               `json:"current_version"`
	TargetVersion  string               `json:"target_version"`
	Environment    string               `json:"environment"`
	Strategy       model.StrategyType   `json:"strategy"`
	Config         model.StrategyConfig `json:"config"`
	RequestedBy    string               `json:"requested_by"`
}

func (r *SubmitRequest) validate() error {
	if strings.TrimSpace(r.Module) == "" {
		return fmt.Errorf("module is required")
	}
	if strings.TrimSpace(r.Environment) == "" {
		return fmt.Errorf("environment is required")
	}
	if strings.TrimSpace(r.TargetVersion) == "" {
		return fmt.Errorf("target version is required")
	}
	return nil
}

// Submit plans and persists a new execution and starts driving it.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if err := req.validate(); err != nil {
		return uuid.Nil, err
	}

	strat, err := strategy.New(req.Strategy)
	if err != nil {
		return uuid.Nil, err
	}
	plan, err := strat.Plan(req.Config)
	if err != nil {
		return uuid.Nil, fmt.Errorf("plan rollout: %w", err)
	}
	plan = strategy.Collapse(plan)
	if err := strategy.ValidateMonotonic(plan); err != nil {
		return uuid.Nil, err
	}
	if req.Config.VerifyArtifact && e.resolver != nil {
		plan.Steps = append([]model.RolloutStep{{
			Name:       "verify artifact",
			Kind:       model.StepVerify,
			Allocation: 0,
			Repeatable: true,
		}}, plan.Steps...)
	}

	now := time.Now()
	exec := &model.DeploymentExecution{
		ID:             uuid.New(),
		Module:         req.Module,
		CurrentVersion: req.CurrentVersion,
		TargetVersion:  req.TargetVersion,
		Environment:    req.Environment,
		Strategy:       req.Strategy,
		Config:         req.Config,
		Status:         model.ExecutionPending,
		Plan:           plan,
		RequestedBy:    req.RequestedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.Create(ctx, exec); err != nil {
		return uuid.Nil, fmt.Errorf("persist execution: %w", err)
	}
	e.notifier.StatusChanged(exec.ID, exec.Status, "")

	e.start(exec, nil)
	return exec.ID, nil
}

// start spawns the driving goroutine. A pre-acquired handle is passed by
// the recovery sweep, which tests lock ownership before resuming.
func (e *Engine) start(exec *model.DeploymentExecution, held *lock.Handle) {
	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[exec.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.cancels, exec.ID)
			delete(e.approvals, exec.ID)
			e.mu.Unlock()
			cancel()
		}()
		e.drive(runCtx, exec, held)
	}()
}

// Approve resolves a waiting approval gate positively.
func (e *Engine) Approve(id uuid.UUID, by string) error {
	return e.decide(id, approvalDecision{approved: true, by: by})
}

// Reject resolves a waiting approval gate negatively; the execution
// fails rather than rolls back, per the gate contract.
func (e *Engine) Reject(id uuid.UUID, by, reason string) error {
	return e.decide(id, approvalDecision{approved: false, by: by, reason: reason})
}

func (e *Engine) decide(id uuid.UUID, d approvalDecision) error {
	e.mu.Lock()
	ch, ok := e.approvals[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("execution %s is not waiting for approval", id)
	}
	select {
	case ch <- d:
		return nil
	default:
		return fmt.Errorf("execution %s already received a decision", id)
	}
}

// Cancel requests cooperative cancellation. It is observed at stage
// boundaries and during observation windows and ends in RolledBack.
func (e *Engine) Cancel(id uuid.UUID) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("execution %s is not running", id)
	}
	cancel()
	return nil
}

// Wait blocks until all driving goroutines finish. Tests and shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels every in-flight execution and waits for the drivers to
// reach a terminal state.
func (e *Engine) Close() {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}
