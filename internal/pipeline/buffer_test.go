// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"errors"
	"testing"

	"github.com/tomtom215/boundarytiles/internal/geojson"
)

func TestBufferStore_PublishResolve(t *testing.T) {
	buffers := NewBufferStore()

	fc := geojson.NewFeatureCollection()
	id := buffers.Publish(fc)
	if id == "" {
		t.Fatal("publish returned an empty id")
	}

	v, err := buffers.Resolve(id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v != any(fc) {
		t.Error("resolved value is not the published one")
	}
	if buffers.Len() != 1 {
		t.Errorf("len = %d, want 1", buffers.Len())
	}
}

func TestBufferStore_MissingInput(t *testing.T) {
	buffers := NewBufferStore()

	if _, err := buffers.Resolve(""); !errors.Is(err, ErrMissingInput) {
		t.Errorf("empty id: expected ErrMissingInput, got %v", err)
	}
	if _, err := buffers.Resolve("unknown"); !errors.Is(err, ErrMissingInput) {
		t.Errorf("unknown id: expected ErrMissingInput, got %v", err)
	}
}

func TestBufferStore_Release(t *testing.T) {
	buffers := NewBufferStore()
	id := buffers.Publish([]byte("payload"))

	buffers.Release(id)
	if _, err := buffers.Resolve(id); !errors.Is(err, ErrMissingInput) {
		t.Errorf("resolve after release: expected ErrMissingInput, got %v", err)
	}

	// Releasing twice is a no-op.
	buffers.Release(id)
	if buffers.Len() != 0 {
		t.Errorf("len = %d, want 0", buffers.Len())
	}
}

func TestBufferStore_DistinctIDs(t *testing.T) {
	buffers := NewBufferStore()

	a := buffers.Publish("a")
	b := buffers.Publish("b")
	if a == b {
		t.Error("two publishes produced the same buffer id")
	}
}
