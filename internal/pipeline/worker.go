// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"context"
	"time"

	"github.com/tomtom215/boundarytiles/internal/geojson"
	"github.com/tomtom215/boundarytiles/internal/task"
)

// pauseProbeInterval is how often a paused worker re-checks the task stage.
const pauseProbeInterval = 50 * time.Millisecond

// checkpoint is the cooperative pause/cancel gate workers call between
// features and between tile layers. It blocks while the task is paused and
// returns ErrCancelled once the task is cancelled. Published output is never
// mutated by an interrupted worker, so re-running the task from its input
// buffer is idempotent.
func checkpoint(ctx context.Context, t *task.Task) error {
	for {
		switch t.Stage() {
		case task.StageCancel:
			return ErrCancelled
		case task.StagePause:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pauseProbeInterval):
			}
		default:
			return ctx.Err()
		}
	}
}

// resolveFeatures loads the task's input buffer as a feature collection.
func resolveFeatures(buffers *BufferStore, bufferID string) (*geojson.FeatureCollection, error) {
	v, err := buffers.Resolve(bufferID)
	if err != nil {
		return nil, err
	}
	fc, ok := v.(*geojson.FeatureCollection)
	if !ok {
		return nil, ErrMissingInput
	}
	return fc, nil
}
