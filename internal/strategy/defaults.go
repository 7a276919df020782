package strategy

import (
	"time"

	"github.com/hotswap-labs/hotswapd/pkg/model"
)

const (
	defaultObservationWindow = 30 * time.Second
	defaultPollInterval      = time.Second
)

var defaultCanaryCurve = []int{1, 5, 10, 25, 50, 100}

func window(cfg model.StrategyConfig) time.Duration {
	if cfg.ObservationWindow > 0 {
		return cfg.ObservationWindow
	}
	return defaultObservationWindow
}

func poll(cfg model.StrategyConfig) time.Duration {
	if cfg.PollInterval > 0 {
		return cfg.PollInterval
	}
	return defaultPollInterval
}
