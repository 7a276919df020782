package model

import "time"

// HealthSnapshot is a point-in-time health reading for a node or
// environment, sourced from the health oracle. The orchestrator only
// reads it.
type HealthSnapshot struct {
	Target        string    `json:"target"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	ErrorRate     float64   `json:"error_rate"`
	LatencyMillis float64   `json:"latency_millis"`
	RequestRate   float64   `json:"request_rate"`
	TakenAt       time.Time `json:"taken_at"`
}

// Breaches returns the name of the first threshold the snapshot
// violates, or "" when the snapshot is within limits.
func (h *HealthSnapshot) Breaches(t Thresholds) string {
	if t.MaxErrorRate > 0 && h.ErrorRate > t.MaxErrorRate {
		return "error-rate"
	}
	if t.MaxLatencyMillis > 0 && h.LatencyMillis > t.MaxLatencyMillis {
		return "latency"
	}
	if t.MaxCPUPercent > 0 && h.CPUPercent > t.MaxCPUPercent {
		return "cpu"
	}
	if t.MaxMemoryPercent > 0 && h.MemoryPercent > t.MaxMemoryPercent {
		return "memory"
	}
	return ""
}
