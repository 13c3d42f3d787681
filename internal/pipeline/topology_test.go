// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"context"
	"testing"

	"github.com/tomtom215/boundarytiles/internal/task"
	"github.com/tomtom215/boundarytiles/internal/topology"
)

func topologyTask(id, bufferID string) *task.Task {
	tk := task.New(id, "sess-1", task.TypeSimplify2,
		task.Unit{CountryCode: "JP", AdminLevel: 1},
		task.TopologyConfig{Quantization: 1e4})
	tk.InputBufferID = bufferID
	return tk
}

func TestProcessTopologySimplification_Success(t *testing.T) {
	buffers := NewBufferStore()
	west := polygon("west", [][][]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	east := polygon("east", [][][]float64{{{1, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 0}}})
	bufferID := publishFeatures(buffers, west, east)
	w := NewTopologyWorker(buffers)

	tk := topologyTask("s2-1", bufferID)
	result := w.ProcessTopologySimplification(context.Background(), tk)

	if !result.Completed() {
		t.Fatalf("topology build failed: %s %s", result.ErrorCode, result.ErrorMessage)
	}
	if result.SharedBoundaryCount != 1 {
		t.Errorf("shared boundaries = %d, want 1", result.SharedBoundaryCount)
	}
	if result.ArcCount != 3 {
		t.Errorf("arc count = %d, want 3", result.ArcCount)
	}
	if result.CompressionRatio <= 0 || result.CompressionRatio > 1 {
		t.Errorf("compression ratio %f out of (0, 1]", result.CompressionRatio)
	}
	if tk.Stage() != task.StageSuccess {
		t.Errorf("task stage = %s, want success", tk.Stage())
	}

	v, err := buffers.Resolve(result.BufferID)
	if err != nil {
		t.Fatalf("resolve output buffer: %v", err)
	}
	topo, ok := v.(*topology.Topology)
	if !ok {
		t.Fatalf("buffer holds %T, want topology", v)
	}
	if !ValidateTopology(topo) {
		t.Error("published topology fails validation")
	}

	// Round trip preserves the feature count.
	fc := CreateFeatureCollection(topo)
	if len(fc.Features) != 2 {
		t.Errorf("round trip produced %d features, want 2", len(fc.Features))
	}
}

func TestProcessTopologySimplification_MissingInput(t *testing.T) {
	w := NewTopologyWorker(NewBufferStore())

	tk := topologyTask("s2-2", "nonexistent")
	result := w.ProcessTopologySimplification(context.Background(), tk)

	if result.Completed() {
		t.Fatal("expected a failed result")
	}
	if result.ErrorCode != CodeMissingInput {
		t.Errorf("error code = %s, want %s", result.ErrorCode, CodeMissingInput)
	}
}

func TestProcessTopologySimplification_EmptyFeatures(t *testing.T) {
	buffers := NewBufferStore()
	bufferID := publishFeatures(buffers)
	w := NewTopologyWorker(buffers)

	result := w.ProcessTopologySimplification(context.Background(), topologyTask("s2-3", bufferID))

	if !result.Completed() {
		t.Fatalf("empty input should build an empty topology: %s", result.ErrorMessage)
	}
	if result.ArcCount != 0 || result.SharedBoundaryCount != 0 {
		t.Errorf("empty topology has %d arcs, %d shared", result.ArcCount, result.SharedBoundaryCount)
	}
	if result.CompressionRatio != 1 {
		t.Errorf("empty compression ratio = %f, want 1", result.CompressionRatio)
	}
}

func TestCreateFeatureCollection_EmptyTopology(t *testing.T) {
	topo := &topology.Topology{
		Type:    "Topology",
		Arcs:    [][][]float64{},
		Objects: map[string]*topology.GeometryCollection{},
	}

	fc := CreateFeatureCollection(topo)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 0 {
		t.Errorf("expected empty collection, got %+v", fc)
	}
}

func TestCalculateTopologyMetrics_Wrapper(t *testing.T) {
	topo := &topology.Topology{
		Type:    "Topology",
		Arcs:    [][][]float64{},
		Objects: map[string]*topology.GeometryCollection{},
	}

	m := CalculateTopologyMetrics(nil, topo)
	if m.CompressionRatio != 1 || m.SharedBoundaryCount != 0 {
		t.Errorf("unexpected metrics for empty input: %+v", m)
	}
}
