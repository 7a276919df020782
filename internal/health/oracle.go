// Package health defines the oracle the engine consults between rollout
// steps. The oracle is a pure read dependency: an unreachable oracle is
// treated as a stage failure, never as implicit good health.
package health

import (
	"context"
	"time"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

type Oracle interface {
	Snapshot(ctx context.Context, target string, window time.Duration) (*model.HealthSnapshot, error)
}
