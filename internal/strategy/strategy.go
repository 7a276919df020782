// Package strategy implements the rollout planners. A strategy is pure:
// it turns a config into an ordered plan and, given the steps that
// actually ran, into a rollback plan. All I/O stays in the engine.
package strategy

import (
	"fmt"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

type Strategy interface {
	Type() model.StrategyType

	// Plan produces the forward allocation sequence. Allocations are
	// monotonically non-decreasing and end at 100.
	Plan(cfg model.StrategyConfig) (model.RolloutPlan, error)

	// RollbackPlan produces the corrective sequence given the forward
	// steps the executor actually ran, in order. The engine only
	// advances past a step once its observation window passes, so every
	// executed step except the last is known-stable; the last one is
	// the step that failed or breached.
	RollbackPlan(cfg model.StrategyConfig, executed []model.RolloutStep) (model.RolloutPlan, error)
}

// New instantiates the strategy for a spec type, fleet-standard four.
func New(t model.StrategyType) (Strategy, error) {
	switch t {
	case model.StrategyDirect:
		return &Direct{}, nil
	case model.StrategyRolling:
		return &Rolling{}, nil
	case model.StrategyBlueGreen:
		return &BlueGreen{}, nil
	case model.StrategyCanary:
		return &Canary{}, nil
	default:
		return nil, fmt.Errorf("unsupported rollout strategy %q", t)
	}
}

// Collapse merges consecutive steps that compute an identical target
// allocation (rounding can fold 1% -> 1%); re-running an identical step
// buys nothing. Approval and the longer window win on merge.
func Collapse(p model.RolloutPlan) model.RolloutPlan {
	if len(p.Steps) < 2 {
		return p
	}
	out := p.Steps[:1]
	for _, step := range p.Steps[1:] {
		last := &out[len(out)-1]
		if step.Kind == last.Kind && step.Allocation == last.Allocation && len(step.TargetNodes) == 0 && len(last.TargetNodes) == 0 {
			if step.ObservationWindow > last.ObservationWindow {
				last.ObservationWindow = step.ObservationWindow
			}
			last.RequiresApproval = last.RequiresApproval || step.RequiresApproval
			continue
		}
		out = append(out, step)
	}
	return model.RolloutPlan{Steps: out}
}

// ValidateMonotonic rejects plans whose allocations regress before 100.
func ValidateMonotonic(p model.RolloutPlan) error {
	prev := -1
	for _, s := range p.Steps {
		if s.Allocation < 0 || s.Allocation > 100 {
			return fmt.Errorf("allocation %d%% out of range in step %q", s.Allocation, s.Name)
		}
		if s.Allocation < prev {
			return fmt.Errorf("allocation regresses from %d%% to %d%% at step %q", prev, s.Allocation, s.Name)
		}
		prev = s.Allocation
	}
	return nil
}
