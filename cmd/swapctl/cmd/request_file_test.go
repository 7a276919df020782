package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

func TestRequestFileToSubmitRequest(t *testing.T) {
	raw := `
module: payments
current_version: 1.0.0
target_version: 2.0.0
environment: prod
strategy: canary
requested_by: sre@example.com
config:
  allocations: [1, 5, 25, 100]
  observation_window: 5m
  poll_interval: 15s
  require_approval: true
  approval_timeout: 30m
  verify_artifact: true
  thresholds:
    max_error_rate: 0.05
    max_latency_millis: 500
`
	var rf requestFile
	require.NoError(t, yaml.Unmarshal([]byte(raw), &rf))

	req, err := rf.toSubmitRequest()
	require.NoError(t, err)
	assert.Equal(t, "payments", req.Module)
	assert.Equal(t, model.StrategyCanary, req.Strategy)
	assert.Equal(t, []int{1, 5, 25, 100}, req.Config.Allocations)
	assert.Equal(t, 5*time.Minute, req.Config.ObservationWindow)
	assert.Equal(t, 15*time.Second, req.Config.PollInterval)
	assert.Equal(t, 30*time.Minute, req.Config.ApprovalTimeout)
	assert.True(t, req.Config.RequireApproval)
	assert.True(t, req.Config.VerifyArtifact)
	assert.InDelta(t, 0.05, req.Config.Thresholds.MaxErrorRate, 1e-9)
}

func TestRequestFileRejectsBadDuration(t *testing.T) {
	var rf requestFile
	rf.Config.ObservationWindow = "five minutes"
	_, err := rf.toSubmitRequest()
	assert.ErrorContains(t, err, "observation_window")
}
