// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"context"
	"time"

	"github.com/tomtom215/boundarytiles/internal/geojson"
	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/metrics"
	"github.com/tomtom215/boundarytiles/internal/task"
	"github.com/tomtom215/boundarytiles/internal/topology"
)

// topologyObjectName is the object layer topology tasks build into.
const topologyObjectName = "boundaries"

// TopologyResult is the outcome of one topology simplification task.
type TopologyResult struct {
	Result
	ArcCount            int     `json:"arcCount"`
	SharedBoundaryCount int     `json:"sharedBoundaryCount"`
	CompressionRatio    float64 `json:"compressionRatio"`
	BufferID            string  `json:"bufferId,omitempty"`
}

// TopologyWorker converts a simplified feature set into shared-arc topology.
type TopologyWorker struct {
	buffers *BufferStore
}

// NewTopologyWorker creates the second-stage simplification worker.
func NewTopologyWorker(buffers *BufferStore) *TopologyWorker {
	return &TopologyWorker{buffers: buffers}
}

// ProcessTopologySimplification runs one topology task to a terminal result.
func (w *TopologyWorker) ProcessTopologySimplification(ctx context.Context, t *task.Task) *TopologyResult {
	started := time.Now()
	result := &TopologyResult{Result: Result{TaskID: t.ID, Status: StatusFailed}}

	cfg, ok := t.Config.(task.TopologyConfig)
	if !ok {
		return w.fail(t, result, started, CodeConfigError, "topology task carries no topology config")
	}

	if t.Stage() == task.StageCancel {
		result.Status = StatusCancelled
		result.DurationMS = time.Since(started).Milliseconds()
		return result
	}
	if err := t.Transition(task.StageProcess); err != nil {
		return w.fail(t, result, started, CodeConfigError, err.Error())
	}

	fc, err := resolveFeatures(w.buffers, t.InputBufferID)
	if err != nil {
		metrics.RecordTaskError(string(task.TypeSimplify2), CodeMissingInput)
		return w.fail(t, result, started, CodeMissingInput, err.Error())
	}

	// Task cancellation and a dead run context both stop the worker without
	// failing the task.
	if err := checkpoint(ctx, t); err != nil {
		if !t.Stage().Terminal() {
			_ = t.Transition(task.StageCancel)
		}
		result.Status = StatusCancelled
		result.DurationMS = time.Since(started).Milliseconds()
		metrics.RecordStage(string(task.TypeSimplify2), time.Since(started), "cancelled")
		return result
	}

	topo, err := topology.Build(topologyObjectName, fc.Features, cfg.Quantization, cfg.Presimplify)
	if err != nil {
		metrics.RecordTaskError(string(task.TypeSimplify2), CodeValidationError)
		return w.fail(t, result, started, CodeValidationError, err.Error())
	}
	t.SetProgress(60)

	topo.Optimize()
	m := topology.CalculateMetrics(fc.Features, topo)

	result.ArcCount = m.ArcCount
	result.SharedBoundaryCount = m.SharedBoundaryCount
	result.CompressionRatio = m.CompressionRatio
	result.BufferID = w.buffers.Publish(topo)
	result.Status = StatusCompleted
	result.DurationMS = time.Since(started).Milliseconds()
	t.SetProgress(100)

	if err := t.Transition(task.StageSuccess); err != nil {
		logging.Warn().Err(err).Str("task_id", t.ID).Msg("Task left process stage during topology build")
	}
	metrics.RecordStage(string(task.TypeSimplify2), time.Since(started), "success")

	logging.Debug().
		Str("task_id", t.ID).
		Int("arcs", result.ArcCount).
		Int("shared", result.SharedBoundaryCount).
		Float64("compression", result.CompressionRatio).
		Msg("Topology simplification complete")
	return result
}

func (w *TopologyWorker) fail(t *task.Task, result *TopologyResult, started time.Time, code, message string) *TopologyResult {
	t.Fail(code, message)
	result.Status = StatusFailed
	result.ErrorCode = code
	result.ErrorMessage = message
	result.DurationMS = time.Since(started).Milliseconds()
	metrics.RecordStage(string(task.TypeSimplify2), time.Since(started), "failed")
	return result
}

// ValidateTopology reports whether a topology is structurally sound.
func ValidateTopology(topo *topology.Topology) bool {
	return topo.Validate()
}

// CalculateTopologyMetrics computes arc, sharing and compression metrics.
func CalculateTopologyMetrics(features []*geojson.Feature, topo *topology.Topology) topology.Metrics {
	return topology.CalculateMetrics(features, topo)
}

// OptimizeTopology drops unreferenced arcs and re-indexes references.
func OptimizeTopology(topo *topology.Topology) {
	topo.Optimize()
}

// CreateFeatureCollection inverts a topology back into absolute-coordinate
// features. An empty topology yields an empty collection.
func CreateFeatureCollection(topo *topology.Topology) *geojson.FeatureCollection {
	return topo.FeatureCollection()
}
