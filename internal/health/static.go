package health

import (
	"context"
	"sync"
	"time"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// StaticOracle serves scripted snapshots, in order, then repeats the
// last one. Tests use it to simulate breaches and outages.
type StaticOracle struct {
	mu    sync.Mutex
	queue []Reading
	calls int
}

// Reading is one scripted oracle response. A non-nil Err simulates an
// unreachable oracle.
type Reading struct {
	Snapshot model.HealthSnapshot
	Err      error
}

func NewStaticOracle(readings ...Reading) *StaticOracle {
	return &StaticOracle{queue: readings}
}

// Healthy returns a snapshot well inside any sane thresholds.
func Healthy(target string) Reading {
	return Reading{Snapshot: model.HealthSnapshot{
		Target:        target,
		CPUPercent:    20,
		MemoryPercent: 30,
		ErrorRate:     0.001,
		LatencyMillis: 12,
		RequestRate:   100,
		TakenAt:       time.Now(),
	}}
}

func (o *StaticOracle) Push(r Reading) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, r)
}

func (o *StaticOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *StaticOracle) Snapshot(_ context.Context, target string, _ time.Duration) (*model.HealthSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls++
	if len(o.queue) == 0 {
		r := Healthy(target)
		return &r.Snapshot, nil
	}
	r := o.queue[0]
	if len(o.queue) > 1 {
		o.queue = o.queue[1:]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	snap := r.Snapshot
	snap.Target = target
	return &snap, nil
}
