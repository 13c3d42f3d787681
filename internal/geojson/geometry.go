// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package geojson provides a typed GeoJSON-like data model for administrative
// boundary features, with parsing, validation and measurement helpers used by
// every pipeline stage.
package geojson

import (
	"fmt"

	"github.com/goccy/go-json"
)

// GeometryType identifies a GeoJSON geometry kind.
type GeometryType string

// Supported geometry types.
const (
	TypePoint              GeometryType = "Point"
	TypeLineString         GeometryType = "LineString"
	TypePolygon            GeometryType = "Polygon"
	TypeMultiPoint         GeometryType = "MultiPoint"
	TypeMultiLineString    GeometryType = "MultiLineString"
	TypeMultiPolygon       GeometryType = "MultiPolygon"
	TypeGeometryCollection GeometryType = "GeometryCollection"
)

// Geometry is a typed GeoJSON geometry. Exactly one coordinate field is
// populated, selected by Type. Coordinates are [lon, lat] pairs.
type Geometry struct {
	Type GeometryType

	// Point holds coordinates for Type == Point.
	Point []float64

	// Line holds coordinates for LineString and MultiPoint.
	Line [][]float64

	// Rings holds coordinates for Polygon and MultiLineString.
	Rings [][][]float64

	// Polygons holds coordinates for MultiPolygon.
	Polygons [][][][]float64

	// Geometries holds children for GeometryCollection.
	Geometries []*Geometry
}

// geometryJSON is the wire representation.
type geometryJSON struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []*Geometry     `json:"geometries,omitempty"`
}

// UnmarshalJSON decodes a GeoJSON geometry into its typed representation.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw geometryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}

	g.Type = raw.Type

	if raw.Type == TypeGeometryCollection {
		g.Geometries = raw.Geometries
		return nil
	}

	if len(raw.Coordinates) == 0 {
		// Missing coordinates are caught by Validate, not by the decoder.
		return nil
	}

	switch raw.Type {
	case TypePoint:
		return json.Unmarshal(raw.Coordinates, &g.Point)
	case TypeLineString, TypeMultiPoint:
		return json.Unmarshal(raw.Coordinates, &g.Line)
	case TypePolygon, TypeMultiLineString:
		return json.Unmarshal(raw.Coordinates, &g.Rings)
	case TypeMultiPolygon:
		return json.Unmarshal(raw.Coordinates, &g.Polygons)
	default:
		return nil
	}
}

// MarshalJSON encodes the geometry back to GeoJSON.
func (g *Geometry) MarshalJSON() ([]byte, error) {
	raw := geometryJSON{Type: g.Type}

	if g.Type == TypeGeometryCollection {
		raw.Geometries = g.Geometries
		if raw.Geometries == nil {
			raw.Geometries = []*Geometry{}
		}
		return json.Marshal(raw)
	}

	var coords any
	switch g.Type {
	case TypePoint:
		coords = g.Point
	case TypeLineString, TypeMultiPoint:
		coords = g.Line
	case TypePolygon, TypeMultiLineString:
		coords = g.Rings
	case TypeMultiPolygon:
		coords = g.Polygons
	default:
		return nil, fmt.Errorf("marshal geometry: unsupported type %q", g.Type)
	}

	data, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	raw.Coordinates = data
	return json.Marshal(raw)
}

// Validate reports whether the geometry is usable by the pipeline.
// It is false for nil geometries, unsupported types, and geometries whose
// coordinate field for their declared type is empty.
func (g *Geometry) Validate() bool {
	if g == nil {
		return false
	}

	switch g.Type {
	case TypePoint:
		return len(g.Point) >= 2
	case TypeLineString, TypeMultiPoint:
		return len(g.Line) > 0
	case TypePolygon, TypeMultiLineString:
		return len(g.Rings) > 0
	case TypeMultiPolygon:
		return len(g.Polygons) > 0
	case TypeGeometryCollection:
		for _, child := range g.Geometries {
			if !child.Validate() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Complexity returns the total vertex count of the geometry.
// Nil geometries have complexity 0; a Point counts as 1.
func (g *Geometry) Complexity() int {
	if g == nil {
		return 0
	}

	switch g.Type {
	case TypePoint:
		return 1
	case TypeLineString, TypeMultiPoint:
		return len(g.Line)
	case TypePolygon, TypeMultiLineString:
		total := 0
		for _, ring := range g.Rings {
			total += len(ring)
		}
		return total
	case TypeMultiPolygon:
		total := 0
		for _, poly := range g.Polygons {
			for _, ring := range poly {
				total += len(ring)
			}
		}
		return total
	case TypeGeometryCollection:
		total := 0
		for _, child := range g.Geometries {
			total += child.Complexity()
		}
		return total
	default:
		return 0
	}
}

// Clone returns a deep copy. Stages hand features to the next stage by
// published buffer, so any mutation works on a private copy.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}

	out := &Geometry{Type: g.Type}

	if g.Point != nil {
		out.Point = append([]float64(nil), g.Point...)
	}
	if g.Line != nil {
		out.Line = cloneLine(g.Line)
	}
	if g.Rings != nil {
		out.Rings = cloneRings(g.Rings)
	}
	if g.Polygons != nil {
		out.Polygons = make([][][][]float64, len(g.Polygons))
		for i, poly := range g.Polygons {
			out.Polygons[i] = cloneRings(poly)
		}
	}
	if g.Geometries != nil {
		out.Geometries = make([]*Geometry, len(g.Geometries))
		for i, child := range g.Geometries {
			out.Geometries[i] = child.Clone()
		}
	}

	return out
}

func cloneLine(line [][]float64) [][]float64 {
	out := make([][]float64, len(line))
	for i, pt := range line {
		out[i] = append([]float64(nil), pt...)
	}
	return out
}

func cloneRings(rings [][][]float64) [][][]float64 {
	out := make([][][]float64, len(rings))
	for i, ring := range rings {
		out[i] = cloneLine(ring)
	}
	return out
}
