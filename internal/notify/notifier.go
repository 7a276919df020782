// Package notify delivers status and progress events to interested
// observers. Delivery is best-effort: the pipeline never waits on and
// never fails because of a notifier.
package notify

import (
	"github.com/google/uuid"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

type Notifier interface {
	StatusChanged(executionID uuid.UUID, status model.ExecutionStatus, reason string)
	Progress(executionID uuid.UUID, stageName string, percentComplete int)
}

// Nop discards all events.
type Nop struct{}

func (Nop) StatusChanged(uuid.UUID, model.ExecutionStatus, string) {}
func (Nop) Progress(uuid.UUID, string, int)                        {}
