// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package topology builds a TopoJSON-style shared-arc encoding from feature
// collections. Adjacent regions that trace the same border in opposite
// directions end up referencing a single arc, negated on one side, so that
// later simplification cannot pull shared borders apart.
package topology

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/boundarytiles/internal/geojson"
)

// Topology is the shared-arc encoding of one or more feature collections.
//
// Invariants: every arc index referenced by an object is within Arcs bounds;
// after Optimize, every arc is referenced by at least one object.
type Topology struct {
	Type    string                         `json:"type"` // always "Topology"
	Arcs    [][][]float64                  `json:"arcs"`
	Objects map[string]*GeometryCollection `json:"objects"`
}

// GeometryCollection groups the topology objects for one named layer.
type GeometryCollection struct {
	Type       string    `json:"type"` // always "GeometryCollection"
	Geometries []*Object `json:"geometries"`
}

// Object is a topology geometry referencing arcs by index. A negative
// reference r encodes the arc at index -1-r traversed in reverse.
type Object struct {
	Type       geojson.GeometryType
	ID         string
	Properties map[string]any

	// Point holds coordinates for Point / MultiPoint objects, which carry
	// no line work and therefore reference no arcs.
	Point      []float64
	MultiPoint [][]float64

	// LineArcs references arcs for LineString objects.
	LineArcs []int

	// RingArcs references arcs for Polygon and MultiLineString objects.
	RingArcs [][]int

	// PolyArcs references arcs for MultiPolygon objects.
	PolyArcs [][][]int

	// Children holds nested objects for GeometryCollection features.
	Children []*Object
}

// objectJSON is the wire shape for an Object.
type objectJSON struct {
	Type       geojson.GeometryType `json:"type"`
	ID         string               `json:"id,omitempty"`
	Properties map[string]any       `json:"properties,omitempty"`
	Coordinates any                 `json:"coordinates,omitempty"`
	Arcs        any                 `json:"arcs,omitempty"`
	Geometries  []*Object           `json:"geometries,omitempty"`
}

// MarshalJSON encodes the object with the arc field shape its type demands.
func (o *Object) MarshalJSON() ([]byte, error) {
	raw := objectJSON{Type: o.Type, ID: o.ID, Properties: o.Properties}

	switch o.Type {
	case geojson.TypePoint:
		raw.Coordinates = o.Point
	case geojson.TypeMultiPoint:
		raw.Coordinates = o.MultiPoint
	case geojson.TypeLineString:
		raw.Arcs = o.LineArcs
	case geojson.TypePolygon, geojson.TypeMultiLineString:
		raw.Arcs = o.RingArcs
	case geojson.TypeMultiPolygon:
		raw.Arcs = o.PolyArcs
	case geojson.TypeGeometryCollection:
		raw.Geometries = o.Children
	}

	return json.Marshal(raw)
}

// Validate reports whether t is a structurally sound topology.
func (t *Topology) Validate() bool {
	return t != nil && t.Type == "Topology" && t.Arcs != nil && t.Objects != nil
}

// Encode serializes the topology. Used for persistence and size metrics.
func (t *Topology) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// eachArcRef visits every arc reference of the object tree, passing a
// pointer so callers can rewrite references in place.
func (o *Object) eachArcRef(fn func(ref *int)) {
	for i := range o.LineArcs {
		fn(&o.LineArcs[i])
	}
	for _, ring := range o.RingArcs {
		for i := range ring {
			fn(&ring[i])
		}
	}
	for _, poly := range o.PolyArcs {
		for _, ring := range poly {
			for i := range ring {
				fn(&ring[i])
			}
		}
	}
	for _, child := range o.Children {
		child.eachArcRef(fn)
	}
}

// arcIndex resolves a possibly-negated reference to its arc index.
func arcIndex(ref int) int {
	if ref < 0 {
		return -1 - ref
	}
	return ref
}

// Optimize removes arcs not referenced, directly or via negated index, by
// any geometry in any object, and re-indexes the survivors consistently.
// The result never has more arcs than the input.
func (t *Topology) Optimize() {
	referenced := make([]bool, len(t.Arcs))
	for _, coll := range t.Objects {
		for _, obj := range coll.Geometries {
			obj.eachArcRef(func(ref *int) {
				idx := arcIndex(*ref)
				if idx >= 0 && idx < len(referenced) {
					referenced[idx] = true
				}
			})
		}
	}

	remap := make([]int, len(t.Arcs))
	kept := make([][][]float64, 0, len(t.Arcs))
	for i, arc := range t.Arcs {
		if referenced[i] {
			remap[i] = len(kept)
			kept = append(kept, arc)
		} else {
			remap[i] = -1
		}
	}

	for _, coll := range t.Objects {
		for _, obj := range coll.Geometries {
			obj.eachArcRef(func(ref *int) {
				idx := arcIndex(*ref)
				if idx < 0 || idx >= len(remap) {
					return
				}
				if *ref < 0 {
					*ref = -1 - remap[idx]
				} else {
					*ref = remap[idx]
				}
			})
		}
	}

	t.Arcs = kept
}

// Metrics summarizes a topology relative to the features it encodes.
type Metrics struct {
	ArcCount             int     `json:"arcCount"`
	OriginalFeatureCount int     `json:"originalFeatureCount"`
	SharedBoundaryCount  int     `json:"sharedBoundaryCount"`
	CompressionRatio     float64 `json:"compressionRatio"`
}

// CalculateMetrics computes arc, sharing and compression statistics.
// Empty feature sets yield a compression ratio of 1 and no shared boundaries.
func CalculateMetrics(features []*geojson.Feature, t *Topology) Metrics {
	m := Metrics{
		ArcCount:             len(t.Arcs),
		OriginalFeatureCount: len(features),
		CompressionRatio:     1,
	}

	if len(features) == 0 {
		return m
	}

	m.SharedBoundaryCount = t.sharedArcCount()

	topoBytes, err := t.Encode()
	if err != nil {
		return m
	}
	featBytes, err := json.Marshal(geojson.FeatureCollection{Type: "FeatureCollection", Features: features})
	if err != nil || len(featBytes) == 0 {
		return m
	}

	ratio := float64(len(topoBytes)) / float64(len(featBytes))
	if ratio > 1 || ratio <= 0 {
		ratio = 1
	}
	m.CompressionRatio = ratio
	return m
}

// sharedArcCount counts arcs referenced by two or more top-level objects.
func (t *Topology) sharedArcCount() int {
	refs := make(map[int]int)
	for _, coll := range t.Objects {
		for _, obj := range coll.Geometries {
			seen := make(map[int]bool)
			obj.eachArcRef(func(ref *int) {
				seen[arcIndex(*ref)] = true
			})
			for idx := range seen {
				refs[idx]++
			}
		}
	}

	shared := 0
	for _, n := range refs {
		if n >= 2 {
			shared++
		}
	}
	return shared
}
