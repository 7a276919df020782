package strategy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotswap-labs/hotswapd/internal/strategy"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

func allocations(p model.RolloutPlan) []int {
	out := make([]int, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Allocation
	}
	return out
}

func TestNewFactory(t *testing.T) {
	for _, typ := range []model.StrategyType{
		model.StrategyDirect,
		model.StrategyRolling,
		model.StrategyBlueGreen,
		model.StrategyCanary,
	} {
		s, err := strategy.New(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, s.Type())
	}

	_, err := strategy.New("teleport")
	assert.Error(t, err)
}

func TestDirectPlan(t *testing.T) {
	s := &strategy.Direct{}

	plan, err := s.Plan(model.StrategyConfig{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.StepCutover, plan.Steps[0].Kind)
	assert.Equal(t, 100, plan.Steps[0].Allocation)
	assert.False(t, plan.Steps[0].Repeatable)

	rb, err := s.RollbackPlan(model.StrategyConfig{}, plan.Steps)
	require.NoError(t, err)
	require.Len(t, rb.Steps, 1)
	assert.Equal(t, model.StepCutover, rb.Steps[0].Kind)
	assert.Equal(t, 0, rb.Steps[0].Allocation)
}

func TestCanaryPlanDefaultCurve(t *testing.T) {
	s := &strategy.Canary{}

	plan, err := s.Plan(model.StrategyConfig{RequireApproval: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 10, 25, 50, 100}, allocations(plan))

	for i, step := range plan.Steps {
		assert.Equal(t, model.StepShift, step.Kind)
		assert.True(t, step.Repeatable)
		assert.Equal(t, 30*time.Second, step.ObservationWindow)
		// Only the final jump to 100% gates on a human.
		assert.Equal(t, i == len(plan.Steps)-1, step.RequiresApproval)
	}
}

func TestCanaryPlanMustEndAtFull(t *testing.T) {
	s := &strategy.Canary{}
	_, err := s.Plan(model.StrategyConfig{Allocations: []int{10, 50}})
	assert.ErrorContains(t, err, "must end at 100%")
}

func TestCanaryPlanRejectsRegression(t *testing.T) {
	s := &strategy.Canary{}
	_, err := s.Plan(model.StrategyConfig{Allocations: []int{10, 5, 100}})
	assert.ErrorContains(t, err, "regresses")
}

func TestCanaryPlanCollapsesDuplicateLevels(t *testing.T) {
	s := &strategy.Canary{}
	plan, err := s.Plan(model.StrategyConfig{Allocations: []int{10, 10, 100}})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 100}, allocations(plan))
}

func TestCanaryRollbackRevertsToPreviousStable(t *testing.T) {
	s := &strategy.Canary{}
	plan, err := s.Plan(model.StrategyConfig{Allocations: []int{1, 5, 10, 100}})
	require.NoError(t, err)

	// Breach at 10%: the 5% level held, revert there.
	rb, err := s.RollbackPlan(model.StrategyConfig{}, plan.Steps[:3])
	require.NoError(t, err)
	require.Len(t, rb.Steps, 1)
	assert.Equal(t, 5, rb.Steps[0].Allocation)

	// Breach at the very first level: nothing held, revert to zero.
	rb, err = s.RollbackPlan(model.StrategyConfig{}, plan.Steps[:1])
	require.NoError(t, err)
	require.Len(t, rb.Steps, 1)
	assert.Equal(t, 0, rb.Steps[0].Allocation)
}

func TestRollingPlanBatches(t *testing.T) {
	s := &strategy.Rolling{}
	cfg := model.StrategyConfig{
		Nodes:           []string{"n1", "n2", "n3", "n4", "n5"},
		Batches:         2,
		RequireApproval: true,
	}

	plan, err := s.Plan(cfg)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, []string{"n1", "n2", "n3"}, plan.Steps[0].TargetNodes)
	assert.Equal(t, []string{"n4", "n5"}, plan.Steps[1].TargetNodes)
	assert.Equal(t, []int{60, 100}, allocations(plan))
	assert.False(t, plan.Steps[0].RequiresApproval)
	assert.True(t, plan.Steps[1].RequiresApproval)
}

func TestRollingPlanCapsBatchesAtNodeCount(t *testing.T) {
	s := &strategy.Rolling{}
	plan, err := s.Plan(model.StrategyConfig{Nodes: []string{"n1", "n2"}, Batches: 10})
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
	assert.Equal(t, []int{50, 100}, allocations(plan))
}

func TestRollingPlanRequiresNodes(t *testing.T) {
	s := &strategy.Rolling{}
	_, err := s.Plan(model.StrategyConfig{})
	assert.ErrorContains(t, err, "node pool")
}

func TestRollingRollbackRevertsExecutedBatchesInReverse(t *testing.T) {
	s := &strategy.Rolling{}
	cfg := model.StrategyConfig{
		Nodes:   []string{"n1", "n2", "n3", "n4", "n5", "n6"},
		Batches: 3,
	}
	plan, err := s.Plan(cfg)
	require.NoError(t, err)

	// Batch 3 never ran, so only the first two are reverted.
	rb, err := s.RollbackPlan(cfg, plan.Steps[:2])
	require.NoError(t, err)
	require.Len(t, rb.Steps, 2)
	assert.Equal(t, plan.Steps[1].TargetNodes, rb.Steps[0].TargetNodes)
	assert.Equal(t, 33, rb.Steps[0].Allocation)
	assert.Equal(t, plan.Steps[0].TargetNodes, rb.Steps[1].TargetNodes)
	assert.Equal(t, 0, rb.Steps[1].Allocation)
}

func TestBlueGreenPlan(t *testing.T) {
	s := &strategy.BlueGreen{}

	plan, err := s.Plan(model.StrategyConfig{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, model.StepProvision, plan.Steps[0].Kind)
	assert.Equal(t, 0, plan.Steps[0].Allocation)
	assert.True(t, plan.Steps[0].Repeatable)
	assert.Equal(t, model.StepCutover, plan.Steps[1].Kind)
	assert.Equal(t, 100, plan.Steps[1].Allocation)
	assert.False(t, plan.Steps[1].Repeatable)

	rb, err := s.RollbackPlan(model.StrategyConfig{}, plan.Steps)
	require.NoError(t, err)
	require.Len(t, rb.Steps, 1)
	assert.Equal(t, model.StepCutover, rb.Steps[0].Kind)
	assert.Equal(t, 0, rb.Steps[0].Allocation)
}

func TestBlueGreenRollbackBudget(t *testing.T) {
	assert.Equal(t, 30*time.Second, strategy.RollbackBudget(model.StrategyConfig{}))
	assert.Equal(t, 5*time.Second, strategy.RollbackBudget(model.StrategyConfig{RollbackBudget: 5 * time.Second}))
}

func TestCollapseMergesAdjacentIdenticalSteps(t *testing.T) {
	win := 10 * time.Second
	plan := strategy.Collapse(model.RolloutPlan{Steps: []model.RolloutStep{
		{Name: "a", Kind: model.StepShift, Allocation: 10, ObservationWindow: win},
		{Name: "b", Kind: model.StepShift, Allocation: 10, ObservationWindow: 3 * win, RequiresApproval: true},
		{Name: "c", Kind: model.StepShift, Allocation: 100},
	}})

	require.Len(t, plan.Steps, 2)
	// The merged step keeps the stricter window and the approval gate.
	assert.Equal(t, 3*win, plan.Steps[0].ObservationWindow)
	assert.True(t, plan.Steps[0].RequiresApproval)
	assert.Equal(t, 100, plan.Steps[1].Allocation)
}

func TestValidateMonotonic(t *testing.T) {
	ok := model.RolloutPlan{Steps: []model.RolloutStep{
		{Name: "a", Allocation: 10},
		{Name: "b", Allocation: 10},
		{Name: "c", Allocation: 100},
	}}
	assert.NoError(t, strategy.ValidateMonotonic(ok))

	regress := model.RolloutPlan{Steps: []model.RolloutStep{
		{Name: "a", Allocation: 50},
		{Name: "b", Allocation: 25},
	}}
	assert.Error(t, strategy.ValidateMonotonic(regress))

	outOfRange := model.RolloutPlan{Steps: []model.RolloutStep{
		{Name: "a", Allocation: 120},
	}}
	assert.Error(t, strategy.ValidateMonotonic(outOfRange))
}
