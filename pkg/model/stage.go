package model

import "time"

type StageStatus string

const (
	StagePending            StageStatus = "pending"
	StageRunning            StageStatus = "running"
	StageSucceeded          StageStatus = "succeeded"
	StageFailed             StageStatus = "failed"
	StageSkipped            StageStatus = "skipped"
	StageWaitingForApproval StageStatus = "waiting_approval"
)

// StatusError carries the machine code and human detail of a failure,
// embedded in stage results and forwarded to the notifier.
type StatusError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// PipelineStage is one executed unit of pipeline work. Statuses move
// strictly forward; a terminal stage is never mutated again.
type PipelineStage struct {
	Name       string      `json:"name"`
	StepIndex  int         `json:"stepIndex"`
	Status     StageStatus `json:"status"`
	Allocation int         `json:"allocation"`
	Rollback   bool        `json:"rollback,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	EndedAt    *time.Time  `json:"endedAt,omitempty"`

	Health *HealthSnapshot `json:"health,omitempty"`
	Error  StatusError     `json:"error,omitempty"`
}
