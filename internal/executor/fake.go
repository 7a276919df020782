package executor

import (
	"context"
	"sync"
)

// FakeExecutor records executed stages and fails the ones a test marks.
type FakeExecutor struct {
	mu sync.Mutex

	// FailStages maps stage name -> number of times to fail it.
	FailStages map[string]int
	// ErrStages maps stage name -> error to return (call failure, not
	// a rejected result).
	ErrStages map[string]error

	Executed []Stage
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		FailStages: make(map[string]int),
		ErrStages:  make(map[string]error),
	}
}

func (f *FakeExecutor) Execute(_ context.Context, stage Stage) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Executed = append(f.Executed, stage)

	if err, ok := f.ErrStages[stage.Step.Name]; ok {
		return Result{}, err
	}
	if n := f.FailStages[stage.Step.Name]; n > 0 {
		f.FailStages[stage.Step.Name] = n - 1
		return Result{Success: false, Detail: "injected failure"}, nil
	}
	return Result{Success: true}, nil
}

// ExecutedStages returns the names of all executed stages in order.
func (f *FakeExecutor) ExecutedStages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.Executed))
	for i, s := range f.Executed {
		out[i] = s.Step.Name
	}
	return out
}

// Allocations returns the allocation sequence of executed stages.
func (f *FakeExecutor) Allocations() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]int, len(f.Executed))
	for i, s := range f.Executed {
		out[i] = s.Step.Allocation
	}
	return out
}
