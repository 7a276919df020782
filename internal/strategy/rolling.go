package strategy

import (
	"fmt"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// Rolling swaps node subsets sequentially with a health gate between
// each batch. Rollback reverts only the batches already switched, in
// reverse order.
type Rolling struct{}

func (*Rolling) Type() model.StrategyType { return model.StrategyRolling }

func (*Rolling) Plan(cfg model.StrategyConfig) (model.RolloutPlan, error) {
	if len(cfg.Nodes) == 0 {
		return model.RolloutPlan{}, fmt.Errorf("rolling strategy requires a node pool")
	}
	batches := cfg.Batches
	if batches <= 0 {
		batches = 3
	}
	if batches > len(cfg.Nodes) {
		batches = len(cfg.Nodes)
	}

	total := len(cfg.Nodes)
	size := total / batches
	rem := total % batches

	var steps []model.RolloutStep
	done := 0
	start := 0
	for i := 0; i < batches; i++ {
		n := size
		if i < rem {
			n++
		}
		batch := cfg.Nodes[start : start+n]
		start += n
		done += n

		steps = append(steps, model.RolloutStep{
			Name:              fmt.Sprintf("swap batch %d/%d", i+1, batches),
			Kind:              model.StepShift,
			Allocation:        done * 100 / total,
			TargetNodes:       batch,
			ObservationWindow: window(cfg),
			PollInterval:      poll(cfg),
			Thresholds:        cfg.Thresholds,
			RequiresApproval:  cfg.RequireApproval && i == batches-1,
			Repeatable:        true,
		})
	}
	return model.RolloutPlan{Steps: steps}, nil
}

func (*Rolling) RollbackPlan(_ model.StrategyConfig, executed []model.RolloutStep) (model.RolloutPlan, error) {
	var steps []model.RolloutStep
	// Revert switched batches newest-first; allocation after each revert
	// is the level the fleet held before that batch went out.
	for i := len(executed) - 1; i >= 0; i-- {
		prior := 0
		if i > 0 {
			prior = executed[i-1].Allocation
		}
		steps = append(steps, model.RolloutStep{
			Name:        fmt.Sprintf("revert %s", executed[i].Name),
			Kind:        model.StepShift,
			Allocation:  prior,
			TargetNodes: executed[i].TargetNodes,
			Repeatable:  true,
		})
	}
	return model.RolloutPlan{Steps: steps}, nil
}
