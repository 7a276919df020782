package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// NATSNotifier publishes execution events on
// hotswap.executions.<id>.status and hotswap.executions.<id>.progress.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATS(url string, logger *zap.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NATSNotifier{conn: nc, logger: logger}, nil
}

type statusEvent struct {
	ExecutionID string                `json:"execution_id"`
	Status      model.ExecutionStatus `json:"status"`
	Reason      string                `json:"reason,omitempty"`
	At          time.Time             `json:"at"`
}

type progressEvent struct {
	ExecutionID     string    `json:"execution_id"`
	Stage           string    `json:"stage"`
	PercentComplete int       `json:"percent_complete"`
	At              time.Time `json:"at"`
}

func (n *NATSNotifier) StatusChanged(id uuid.UUID, status model.ExecutionStatus, reason string) {
	n.publish(
		fmt.Sprintf("hotswap.executions.%s.status", id),
		statusEvent{ExecutionID: id.String(), Status: status, Reason: reason, At: time.Now()},
	)
}

func (n *NATSNotifier) Progress(id uuid.UUID, stageName string, percent int) {
	n.publish(
		fmt.Sprintf("hotswap.executions.%s.progress", id),
		progressEvent{ExecutionID: id.String(), Stage: stageName, PercentComplete: percent, At: time.Now()},
	)
}

func (n *NATSNotifier) publish(subject string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		n.logger.Warn("notify: marshal failed", zap.Error(err))
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Warn("notify: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
