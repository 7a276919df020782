package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AgentExecutor posts stages to the node-agent endpoint of the target
// environment.
type AgentExecutor struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewAgentExecutor(baseURL string, logger *zap.Logger) *AgentExecutor {
	return &AgentExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (e *AgentExecutor) Execute(ctx context.Context, stage Stage) (Result, error) {
	body, err := json.Marshal(stage)
	if err != nil {
		return Result{}, err
	}

	url := fmt.Sprintf("%s/v1/environments/%s/stages", e.baseURL, stage.Environment)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("stage executor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("stage executor returned %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode stage result: %w", err)
	}
	e.logger.Info("stage executed",
		zap.String("execution", stage.ExecutionID.String()),
		zap.String("stage", stage.Step.Name),
		zap.Bool("success", res.Success),
	)
	return res, nil
}
