// Package metrics provides Prometheus metrics for painter: transform
// latency and failures, asset fetches, loaded models and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Transforms ─────────────────────────────────────────────────────────────

// TransformLatency tracks end-to-end transform duration in seconds.
var TransformLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "painter",
	Name:      "transform_latency_seconds",
	Help:      "Transform request duration in seconds.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
}, []string{"style"})

// TransformsTotal counts successful transforms by style.
var TransformsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "painter",
	Name:      "transforms_total",
	Help:      "Total successful transforms.",
}, []string{"style"})

// TransformFailures counts failed transforms by style and reason.
var TransformFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "painter",
	Name:      "transform_failures_total",
	Help:      "Total failed transforms.",
}, []string{"style", "reason"})

// ─── Assets ─────────────────────────────────────────────────────────────────

// AssetFetches counts weight downloads by style and result (ok, error).
var AssetFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "painter",
	Name:      "asset_fetches_total",
	Help:      "Total weight file downloads.",
}, []string{"style", "result"})

// AssetFetchBytes counts bytes written by weight downloads.
var AssetFetchBytes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "painter",
	Name:      "asset_fetch_bytes_total",
	Help:      "Total bytes downloaded for weight files.",
})

// ─── Models ─────────────────────────────────────────────────────────────────

// ModelsLoaded tracks handles currently held by the pool.
var ModelsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "painter",
	Name:      "models_loaded",
	Help:      "Number of style models held in memory.",
})

// ModelLoadLatency tracks time spent resolving and loading a model.
var ModelLoadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "painter",
	Name:      "model_load_seconds",
	Help:      "Time to resolve and load a style model.",
	Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
}, []string{"style"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "painter",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
