// Package executor defines the stage-execution contract between the
// pipeline engine and the node agents that actually move traffic and
// swap modules. The executor performs no internal retries; bounded
// retry is the engine's job.
package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// Stage is one unit of work handed to the executor: which execution it
// belongs to, what to deploy, and the plan step to apply.
type Stage struct {
	ExecutionID uuid.UUID         `json:"execution_id"`
	Module      string            `json:"module"`
	Version     string            `json:"version"`
	Digest      string            `json:"digest,omitempty"`
	Environment string            `json:"environment"`
	Step        model.RolloutStep `json:"step"`
	Rollback    bool              `json:"rollback,omitempty"`
}

type Result struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// Executor applies one stage to the target node set. A returned error
// means the call itself could not be made; Result.Success=false means
// the agents rejected or failed the work. Steps declare their own
// repeatability (model.RolloutStep.Repeatable) so recovery can decide
// between re-run and rollback.
type Executor interface {
	Execute(ctx context.Context, stage Stage) (Result, error)
}
