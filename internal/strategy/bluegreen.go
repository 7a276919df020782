package strategy

import (
	"time"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

const defaultRollbackBudget = 30 * time.Second

// BlueGreen provisions the target version alongside the running one at
// zero traffic, then cuts over atomically. Rollback is one cutover back
// to the blue side, bounded by a fixed time budget.
type BlueGreen struct{}

func (*BlueGreen) Type() model.StrategyType { return model.StrategyBlueGreen }

func (*BlueGreen) Plan(cfg model.StrategyConfig) (model.RolloutPlan, error) {
	return model.RolloutPlan{Steps: []model.RolloutStep{
		{
			Name:              "provision green at 0%",
			Kind:              model.StepProvision,
			Allocation:        0,
			ObservationWindow: window(cfg),
			PollInterval:      poll(cfg),
			Thresholds:        cfg.Thresholds,
			Repeatable:        true,
		},
		{
			Name:              "cutover to green",
			Kind:              model.StepCutover,
			Allocation:        100,
			ObservationWindow: window(cfg),
			PollInterval:      poll(cfg),
			Thresholds:        cfg.Thresholds,
			RequiresApproval:  cfg.RequireApproval,
			Repeatable:        false,
		},
	}}, nil
}

// RollbackBudget is the hard bound on the rollback cutover.
func RollbackBudget(cfg model.StrategyConfig) time.Duration {
	if cfg.RollbackBudget > 0 {
		return cfg.RollbackBudget
	}
	return defaultRollbackBudget
}

func (*BlueGreen) RollbackPlan(_ model.StrategyConfig, _ []model.RolloutStep) (model.RolloutPlan, error) {
	return model.RolloutPlan{Steps: []model.RolloutStep{{
		Name:       "cutover back to blue",
		Kind:       model.StepCutover,
		Allocation: 0,
		Repeatable: false,
	}}}, nil
}
