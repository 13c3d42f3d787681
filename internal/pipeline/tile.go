// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/tomtom215/boundarytiles/internal/geojson"
	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/metrics"
	"github.com/tomtom215/boundarytiles/internal/mvt"
	"github.com/tomtom215/boundarytiles/internal/task"
	"github.com/tomtom215/boundarytiles/internal/topology"
)

// TileResult is the outcome of one vector tile generation task.
type TileResult struct {
	Result
	TileData []byte           `json:"-"`
	Metadata mvt.TileMetadata `json:"metadata"`
	Warnings []string         `json:"warnings,omitempty"`
}

// TileWorker encodes topology output into binary vector tiles.
type TileWorker struct {
	buffers *BufferStore
	layers  []mvt.LayerConfig
}

// NewTileWorker creates the tile generation worker with the configured layer
// set.
func NewTileWorker(buffers *BufferStore, layers []mvt.LayerConfig) *TileWorker {
	return &TileWorker{buffers: buffers, layers: layers}
}

// GenerateVectorTile runs one tile task to a terminal result. The input
// buffer may hold either a topology or a plain feature collection.
func (w *TileWorker) GenerateVectorTile(ctx context.Context, t *task.Task) *TileResult {
	started := time.Now()
	result := &TileResult{Result: Result{TaskID: t.ID, Status: StatusFailed}}

	cfg, ok := t.Config.(task.TileConfig)
	if !ok {
		return w.fail(t, result, started, CodeConfigError, "tile task carries no tile config")
	}
	if cfg.Extent <= 0 {
		cfg.Extent = mvt.DefaultExtent
	}

	if t.Stage() == task.StageCancel {
		result.Status = StatusCancelled
		result.DurationMS = time.Since(started).Milliseconds()
		return result
	}
	if err := t.Transition(task.StageProcess); err != nil {
		return w.fail(t, result, started, CodeConfigError, err.Error())
	}

	features, err := w.resolveInput(t.InputBufferID)
	if err != nil {
		metrics.RecordTaskError(string(task.TypeVectorTile), CodeMissingInput)
		return w.fail(t, result, started, CodeMissingInput, err.Error())
	}

	coord := mvt.TileCoord{Z: cfg.Zoom, X: cfg.X, Y: cfg.Y}

	visible := mvt.FilterFeaturesByZoom(features, w.layers, cfg.Zoom)
	trimmed := mvt.FilterProperties(visible, w.layers)
	split := mvt.SplitByLayer(trimmed, w.layers)
	t.SetProgress(40)

	// Layer-by-layer checkpointing keeps pause and cancel responsive on
	// tiles with many layers.
	layers := make([]mvt.LayerData, 0, len(split))
	for _, layer := range split {
		// Task cancellation and a dead run context both stop the worker
		// without failing the task.
		if err := checkpoint(ctx, t); err != nil {
			if !t.Stage().Terminal() {
				_ = t.Transition(task.StageCancel)
			}
			result.Status = StatusCancelled
			result.DurationMS = time.Since(started).Milliseconds()
			metrics.RecordStage(string(task.TypeVectorTile), time.Since(started), "cancelled")
			return result
		}
		layers = append(layers, layer)
	}

	data := mvt.OptimizeTileData(mvt.EncodeTile(coord, cfg.Extent, layers))
	t.SetProgress(80)

	validation := mvt.ValidateTileData(data)
	result.Warnings = validation.Warnings
	if !validation.Valid {
		metrics.RecordTaskError(string(task.TypeVectorTile), CodeValidationError)
		return w.fail(t, result, started, CodeValidationError, "tile validation failed: "+validation.Code)
	}

	result.TileData = data
	result.Metadata = mvt.GenerateTileMetadata(coord, data, layers)
	result.Status = StatusCompleted
	result.DurationMS = time.Since(started).Milliseconds()
	t.SetProgress(100)

	if err := t.Transition(task.StageSuccess); err != nil {
		logging.Warn().Err(err).Str("task_id", t.ID).Msg("Task left process stage during tile generation")
	}

	metrics.TileBytes.Observe(float64(len(data)))
	metrics.TilesGenerated.WithLabelValues(strconv.Itoa(cfg.Zoom)).Inc()
	metrics.RecordStage(string(task.TypeVectorTile), time.Since(started), "success")

	logging.Debug().
		Str("task_id", t.ID).
		Int("z", coord.Z).Int("x", coord.X).Int("y", coord.Y).
		Int("bytes", len(data)).
		Int("features", result.Metadata.Features).
		Msg("Vector tile generated")
	return result
}

// resolveInput accepts either a topology buffer (the usual case, published
// by the topology stage) or a raw feature collection.
func (w *TileWorker) resolveInput(bufferID string) ([]*geojson.Feature, error) {
	v, err := w.buffers.Resolve(bufferID)
	if err != nil {
		return nil, err
	}

	switch input := v.(type) {
	case *topology.Topology:
		return input.FeatureCollection().Features, nil
	case *geojson.FeatureCollection:
		return input.Features, nil
	default:
		return nil, ErrMissingInput
	}
}

func (w *TileWorker) fail(t *task.Task, result *TileResult, started time.Time, code, message string) *TileResult {
	t.Fail(code, message)
	result.Status = StatusFailed
	result.ErrorCode = code
	result.ErrorMessage = message
	result.DurationMS = time.Since(started).Milliseconds()
	metrics.RecordStage(string(task.TypeVectorTile), time.Since(started), "failed")
	return result
}
