package strategy

import (
	"fmt"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// Canary advances traffic along a monotonic allocation curve with an
// observation window at each level. Rollback reverts to the last level
// that passed its window, or to 0% when the first level failed.
type Canary struct{}

func (*Canary) Type() model.StrategyType { return model.StrategyCanary }

func (*Canary) Plan(cfg model.StrategyConfig) (model.RolloutPlan, error) {
	curve := cfg.Allocations
	if len(curve) == 0 {
		curve = defaultCanaryCurve
	}
	if curve[len(curve)-1] != 100 {
		return model.RolloutPlan{}, fmt.Errorf("canary curve must end at 100%%, got %d%%", curve[len(curve)-1])
	}

	steps := make([]model.RolloutStep, 0, len(curve))
	for i, alloc := range curve {
		steps = append(steps, model.RolloutStep{
			Name:              fmt.Sprintf("shift %d%% traffic", alloc),
			Kind:              model.StepShift,
			Allocation:        alloc,
			ObservationWindow: window(cfg),
			PollInterval:      poll(cfg),
			Thresholds:        cfg.Thresholds,
			RequiresApproval:  cfg.RequireApproval && i == len(curve)-1,
			Repeatable:        true,
		})
	}

	plan := Collapse(model.RolloutPlan{Steps: steps})
	if err := ValidateMonotonic(plan); err != nil {
		return model.RolloutPlan{}, err
	}
	return plan, nil
}

func (*Canary) RollbackPlan(_ model.StrategyConfig, executed []model.RolloutStep) (model.RolloutPlan, error) {
	// Last executed step is the one that breached; the one before it is
	// the last allocation that held through its window.
	stable := 0
	if len(executed) > 1 {
		stable = executed[len(executed)-2].Allocation
	}
	return model.RolloutPlan{Steps: []model.RolloutStep{{
		Name:       fmt.Sprintf("revert to %d%% traffic", stable),
		Kind:       model.StepShift,
		Allocation: stable,
		Repeatable: true,
	}}}, nil
}
