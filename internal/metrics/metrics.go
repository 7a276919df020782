package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExecutionsActive *prometheus.GaugeVec
	ExecutionsTotal  *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	LockWaitSeconds  prometheus.Histogram
)

func Init(subsystem string) {
	ExecutionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hotswap",
			Subsystem: subsystem,
			Name:      "executions_active",
			Help:      fmt.Sprintf("Executions currently running in %s", subsystem),
		},
		[]string{"environment"},
	)

	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hotswap",
			Subsystem: subsystem,
			Name:      "executions_total",
			Help:      fmt.Sprintf("Finished executions handled by %s", subsystem),
		},
		[]string{"strategy", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotswap",
			Subsystem: subsystem,
			Name:      "stage_duration_seconds",
			Help:      fmt.Sprintf("Stage execution duration in %s", subsystem),
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	LockWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hotswap",
			Subsystem: subsystem,
			Name:      "lock_wait_seconds",
			Help:      fmt.Sprintf("Time spent waiting for resource locks in %s", subsystem),
			Buckets:   prometheus.DefBuckets,
		},
	)

	prometheus.MustRegister(ExecutionsActive, ExecutionsTotal, StageDuration, LockWaitSeconds)
}

func StartServer(port string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":"+port, nil); err != nil {
			panic("metrics server failed: " + err.Error())
		}
	}()
}
