// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package spatial

import (
	"fmt"

	"github.com/tomtom215/boundarytiles/internal/geojson"
)

// IndexEntry is the per-feature spatial index record. One entry is computed
// for every feature during download and is immutable afterwards.
type IndexEntry struct {
	IndexID    string     `json:"indexId"`
	FeatureID  string     `json:"featureId"`
	MortonCode uint32     `json:"mortonCode"`
	BBox       [4]float64 `json:"bbox"`
	Centroid   [2]float64 `json:"centroid"`
	Area       float64    `json:"area"`
	Complexity int        `json:"complexity"`
}

// BuildIndexEntry computes the index entry for a feature. The ordinal keeps
// index IDs unique for features that arrive without an ID of their own.
func BuildIndexEntry(f *geojson.Feature, ordinal int) IndexEntry {
	featureID := f.ID
	if featureID == "" {
		featureID = fmt.Sprintf("feature-%d", ordinal)
	}

	centroid := f.Geometry.Centroid()

	return IndexEntry{
		IndexID:    fmt.Sprintf("idx-%d-%s", ordinal, featureID),
		FeatureID:  featureID,
		MortonCode: MortonCode(centroid[0], centroid[1]),
		BBox:       f.Geometry.BBox(),
		Centroid:   centroid,
		Area:       f.Geometry.Area(),
		Complexity: f.Geometry.Complexity(),
	}
}

// BuildIndex computes entries for a whole feature set, preserving order.
func BuildIndex(features []*geojson.Feature) []IndexEntry {
	entries := make([]IndexEntry, len(features))
	for i, f := range features {
		entries[i] = BuildIndexEntry(f, i)
	}
	return entries
}
