package cmd

import (
	"fmt"
	"time"

	"github.com/hotswap-labs/hotswapd/internal/engine"
	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// requestFile is the YAML shape of a deployment request. Durations are
// human strings ("30s", "5m") and converted before submission.
type requestFile struct {
	Module         string             `yaml:"module"`
	CurrentVersion string             `yaml:"current_version"`
	TargetVersion  string             `yaml:"target_version"`
	Environment    string             `yaml:"environment"`
	Strategy       model.StrategyType `yaml:"strategy"`
	RequestedBy    string             `yaml:"requested_by"`

	Config struct {
		Allocations       []int    `yaml:"allocations"`
		Batches           int      `yaml:"batches"`
		Nodes             []string `yaml:"nodes"`
		ObservationWindow string   `yaml:"observation_window"`
		PollInterval      string   `yaml:"poll_interval"`
		RequireApproval   bool     `yaml:"require_approval"`
		ApprovalTimeout   string   `yaml:"approval_timeout"`
		RollbackBudget    string   `yaml:"rollback_budget"`
		VerifyArtifact    bool     `yaml:"verify_artifact"`
		Thresholds        struct {
			MaxErrorRate     float64 `yaml:"max_error_rate"`
			MaxLatencyMillis float64 `yaml:"max_latency_millis"`
			MaxCPUPercent    float64 `yaml:"max_cpu_percent"`
			MaxMemoryPercent float64 `yaml:"max_memory_percent"`
		} `yaml:"thresholds"`
	} `yaml:"config"`
}

func (rf *requestFile) toSubmitRequest() (engine.SubmitRequest, error) {
	parse := func(name, s string) (time.Duration, error) {
		if s == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
		}
		return d, nil
	}

	window, err := parse("observation_window", rf.Config.ObservationWindow)
	if err != nil {
		return engine.SubmitRequest{}, err
	}
	poll, err := parse("poll_interval", rf.Config.PollInterval)
	if err != nil {
		return engine.SubmitRequest{}, err
	}
	approval, err := parse("approval_timeout", rf.Config.ApprovalTimeout)
	if err != nil {
		return engine.SubmitRequest{}, err
	}
	budget, err := parse("rollback_budget", rf.Config.RollbackBudget)
	if err != nil {
		return engine.SubmitRequest{}, err
	}

	return engine.SubmitRequest{
		Module:         rf.Module,
		CurrentVersion: rf.CurrentVersion,
		TargetVersion:  rf.TargetVersion,
		Environment:    rf.Environment,
		Strategy:       rf.Strategy,
		RequestedBy:    rf.RequestedBy,
		Config: model.StrategyConfig{
			Allocations:       rf.Config.Allocations,
			Batches:           rf.Config.Batches,
			Nodes:             rf.Config.Nodes,
			ObservationWindow: window,
			PollInterval:      poll,
			Thresholds: model.Thresholds{
				MaxErrorRate:     rf.Config.Thresholds.MaxErrorRate,
				MaxLatencyMillis: rf.Config.Thresholds.MaxLatencyMillis,
				MaxCPUPercent:    rf.Config.Thresholds.MaxCPUPercent,
				MaxMemoryPercent: rf.Config.Thresholds.MaxMemoryPercent,
			},
			RequireApproval: rf.Config.RequireApproval,
			ApprovalTimeout: approval,
			RollbackBudget:  budget,
			VerifyArtifact:  rf.Config.VerifyArtifact,
		},
	}, nil
}
