package strategy

import (
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// Direct swaps everything at once: one cutover to 100%. Highest risk,
// meant for low-stakes environments.
type Direct struct{}

func (*Direct) Type() model.StrategyType { return model.StrategyDirect }

func (*Direct) Plan(cfg model.StrategyConfig) (model.RolloutPlan, error) {
	return model.RolloutPlan{Steps: []model.RolloutStep{{
		Name:              "cutover to 100%",
		Kind:              model.StepCutover,
		Allocation:        100,
		ObservationWindow: window(cfg),
		PollInterval:      poll(cfg),
		Thresholds:        cfg.Thresholds,
		RequiresApproval:  cfg.RequireApproval,
		Repeatable:        false,
	}}}, nil
}

func (*Direct) RollbackPlan(cfg model.StrategyConfig, _ []model.RolloutStep) (model.RolloutPlan, error) {
	return model.RolloutPlan{Steps: []model.RolloutStep{{
		Name:       "cutover back to previous version",
		Kind:       model.StepCutover,
		Allocation: 0,
		Repeatable: false,
	}}}, nil
}
