package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

// HTTPOracle reads snapshots from a metrics service over HTTP.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPOracle(baseURL string, logger *zap.Logger) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

func (o *HTTPOracle) Snapshot(ctx context.Context, target string, window time.Duration) (*model.HealthSnapshot, error) {
	u := fmt.Sprintf("%s/v1/snapshot?target=%s&window=%s",
		o.baseURL, url.QueryEscape(target), url.QueryEscape(window.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health oracle unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health oracle returned %d for %s", resp.StatusCode, target)
	}

	var snap model.HealthSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode health snapshot: %w", err)
	}
	o.logger.Debug("health snapshot",
		zap.String("target", target),
		zap.Float64("error_rate", snap.ErrorRate),
	)
	return &snap, nil
}
