// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package geojson

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFeatureCollection is returned when parsed JSON is structurally valid
// but its top-level type is not "FeatureCollection".
var ErrNotFeatureCollection = errors.New("top-level type is not FeatureCollection")

// FeatureMetadata carries provenance and quality data attached by the
// download stage and updated by later stages.
type FeatureMetadata struct {
	OriginalID          string     `json:"originalId,omitempty"`
	DataSource          string     `json:"dataSource,omitempty"`
	DownloadedAt        time.Time  `json:"downloadedAt,omitempty"`
	SimplificationLevel float64    `json:"simplificationLevel,omitempty"`
	QualityScore        float64    `json:"qualityScore,omitempty"`
	BBox                [4]float64 `json:"bbox,omitempty"`
}

// Feature is a single boundary feature. A feature is owned exclusively by
// the stage currently processing it; stages publish results under new buffer
// IDs rather than mutating features in place.
type Feature struct {
	Type       string           `json:"type"`
	ID         string           `json:"id,omitempty"`
	Geometry   *Geometry        `json:"geometry"`
	Properties map[string]any   `json:"properties,omitempty"`
	Metadata   *FeatureMetadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the feature.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}

	out := &Feature{
		Type:     f.Type,
		ID:       f.ID,
		Geometry: f.Geometry.Clone(),
	}
	if f.Properties != nil {
		out.Properties = make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			out.Properties[k] = v
		}
	}
	if f.Metadata != nil {
		meta := *f.Metadata
		out.Metadata = &meta
	}
	return out
}

// FeatureCollection is a GeoJSON-like feature collection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection with the correct type tag.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []*Feature{}}
}

// ParseFeatureCollection decodes raw bytes into a FeatureCollection.
// Returns ErrNotFeatureCollection when the payload parses but is not a
// feature collection.
func ParseFeatureCollection(data []byte) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: got %q", ErrNotFeatureCollection, fc.Type)
	}
	if fc.Features == nil {
		fc.Features = []*Feature{}
	}
	return &fc, nil
}

// Encode serializes the collection back to JSON bytes.
func (fc *FeatureCollection) Encode() ([]byte, error) {
	return json.Marshal(fc)
}
