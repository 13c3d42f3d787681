// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package metrics provides Prometheus collectors for the processing
// pipeline: per-stage durations, task outcomes, cache efficiency, tile
// output and cleanup activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stage executions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"}, // "download", "simplify1", "simplify2", "vector_tile"
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_total",
			Help: "Total number of pipeline tasks by stage and outcome",
		},
		[]string{"stage", "outcome"}, // outcome: "success", "failed", "cancelled"
	)

	TaskErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_task_errors_total",
			Help: "Total number of task failures by taxonomy code",
		},
		[]string{"stage", "code"}, // "NETWORK_ERROR", "VALIDATION_ERROR", ...
	)

	// Download metrics
	DownloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "download_bytes_total",
			Help: "Total bytes of boundary data downloaded",
		},
	)

	DownloadFeatures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "download_features_total",
			Help: "Total number of boundary features parsed from downloads",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "download"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	// Tile metrics
	TileBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tile_size_bytes",
			Help:    "Encoded vector tile sizes in bytes",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 524288, 1048576},
		},
	)

	TilesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiles_generated_total",
			Help: "Total number of vector tiles generated",
		},
		[]string{"zoom"},
	)

	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_sessions_active",
			Help: "Current number of running batch sessions",
		},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_sessions_total",
			Help: "Total number of batch sessions by terminal status",
		},
		[]string{"status"}, // "completed", "cancelled", "failed"
	)

	// Cleanup metrics
	CleanupRemovals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_removals_total",
			Help: "Total number of expired records removed by the cleanup service",
		},
		[]string{"record_type"}, // "working_copy", "batch_session"
	)

	CleanupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cleanup_cycle_duration_seconds",
			Help:    "Duration of cleanup cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CleanupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cleanup_errors_total",
			Help: "Total number of failed cleanup cycles",
		},
	)
)

// RecordStage records one stage execution with its duration and outcome.
func RecordStage(stage string, duration time.Duration, outcome string) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	TasksTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordTaskError counts a task failure under its taxonomy code.
func RecordTaskError(stage, code string) {
	TaskErrors.WithLabelValues(stage, code).Inc()
}

// RecordCacheAccess counts a hit or miss for the named cache.
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType).Inc()
}
