package model

import "time"

type StrategyType string

const (
	StrategyDirect    StrategyType = "direct"
	StrategyRolling   StrategyType = "rolling"
	StrategyBlueGreen StrategyType = "bluegreen"
	StrategyCanary    StrategyType = "canary"
)

// StepKind tells the executor what kind of work a step is.
type StepKind string

const (
	StepVerify    StepKind = "verify"    // artifact/digest verification, no traffic moved
	StepProvision StepKind = "provision" // stand up target version at zero traffic
	StepShift     StepKind = "shift"     // move a fraction of traffic/capacity
	StepCutover   StepKind = "cutover"   // atomic 0->100 or 100->0 switch
)

// Thresholds are the health limits that gate advancement during an
// observation window. A zero value means the dimension is not checked.
type Thresholds struct {
	MaxErrorRate     float64 `json:"maxErrorRate,omitempty"`
	MaxLatencyMillis float64 `json:"maxLatencyMillis,omitempty"`
	MaxCPUPercent    float64 `json:"maxCpuPercent,omitempty"`
	MaxMemoryPercent float64 `json:"maxMemoryPercent,omitempty"`
}

// RolloutStep is one allocation step in a plan.
type RolloutStep struct {
	Name              string        `json:"name"`
	Kind              StepKind      `json:"kind"`
	Allocation        int           `json:"allocation"` // percent of traffic on the target version
	TargetNodes       []string      `json:"targetNodes,omitempty"`
	ObservationWindow time.Duration `json:"observationWindow"`
	PollInterval      time.Duration `json:"pollInterval"`
	Thresholds        Thresholds    `json:"thresholds"`
	RequiresApproval  bool          `json:"requiresApproval,omitempty"`

	// Repeatable declares the step safe to re-execute after a crash.
	// Recovery rolls back instead of re-running a non-repeatable step.
	Repeatable bool `json:"repeatable"`
}

// RolloutPlan is the ordered step sequence a strategy produces.
// Allocations are monotonically non-decreasing until 100 for forward
// plans; rollback plans run downward.
type RolloutPlan struct {
	Steps []RolloutStep `json:"steps"`
}

// StrategyConfig is the caller-provided tuning for the chosen strategy.
type StrategyConfig struct {
	// Allocations is the canary curve, e.g. [1,5,10,25,50,100].
	Allocations []int `json:"allocations,omitempty"`
	// Batches is the rolling batch count; nodes are split evenly.
	Batches int `json:"batches,omitempty"`
	// Nodes is the node pool for node-subset strategies.
	Nodes []string `json:"nodes,omitempty"`

	ObservationWindow time.Duration `json:"observationWindow,omitempty"`
	PollInterval      time.Duration `json:"pollInterval,omitempty"`
	Thresholds        Thresholds    `json:"thresholds,omitempty"`

	RequireApproval bool          `json:"requireApproval,omitempty"`
	ApprovalTimeout time.Duration `json:"approvalTimeout,omitempty"`

	// RollbackBudget bounds the blue-green rollback cutover.
	RollbackBudget time.Duration `json:"rollbackBudget,omitempty"`

	// VerifyArtifact pins the module version to an OCI digest before any
	// traffic moves.
	VerifyArtifact bool `json:"verifyArtifact,omitempty"`
}
