package model

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionPending            ExecutionStatus = "pending"
	ExecutionRunning            ExecutionStatus = "running"
	ExecutionWaitingForApproval ExecutionStatus = "waiting_approval"
	ExecutionSucceeded          ExecutionStatus = "succeeded"
	ExecutionFailed             ExecutionStatus = "failed"
	ExecutionRolledBack         ExecutionStatus = "rolled_back"
)

// Terminal reports whether the status can never change again.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionFailed, ExecutionRolledBack:
		return true
	}
	return false
}

// Failure reasons recorded on the execution when it terminates abnormally.
const (
	ReasonContended       = "resource contended"
	ReasonRollbackFailed  = "rollback-failed"
	ReasonStoreConflict   = "store conflict"
	ReasonLeaseLost       = "lease lost"
	ReasonCanceled        = "canceled"
	ReasonApprovalDenied  = "approval rejected"
	ReasonApprovalExpired = "approval expired"
)

// DeploymentExecution is one attempt to move a module on a target
// environment from CurrentVersion to TargetVersion. The stage history is
// append-only: rollback appends new stages, it never rewrites old ones.
type DeploymentExecution struct {
	ID             uuid.UUID       `json:"id"`
	Module         string          `json:"module"`
	CurrentVersion string          `json:"currentVersion"`
	TargetVersion  string          `json:"targetVersion"`
	Environment    string          `json:"environment"`
	Strategy       StrategyType    `json:"strategy"`
	Config         StrategyConfig  `json:"config"`
	Status         ExecutionStatus `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	ArtifactDigest string          `json:"artifactDigest,omitempty"`

	// CurrentStep indexes into the rollout plan; used by crash recovery
	// to resume from the last persisted position.
	CurrentStep int             `json:"currentStep"`
	Plan        RolloutPlan     `json:"plan"`
	Stages      []PipelineStage `json:"stages"`

	RequestedBy string    `json:"requestedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Revision guards Save with optimistic concurrency; bumped by the
	// store on every successful write.
	Revision int64 `json:"revision"`
}

// LockKey is the mutual-exclusion key: one live execution per module and
// environment pair.
func (e *DeploymentExecution) LockKey() string {
	return e.Module + "/" + e.Environment
}

// LastPassedStep returns the index of the last plan step whose
// observation window fully elapsed, or -1 if none did.
func (e *DeploymentExecution) LastPassedStep() int {
	last := -1
	for _, st := range e.Stages {
		if st.Rollback {
			continue
		}
		if st.Status == StageSucceeded && st.StepIndex >= 0 && st.StepIndex > last {
			last = st.StepIndex
		}
	}
	return last
}
