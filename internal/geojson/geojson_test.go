// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package geojson

import (
	"math"
	"testing"
)

func squareFeatureJSON() []byte {
	return []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"id": "JP-01",
				"geometry": {
					"type": "Polygon",
					"coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]
				},
				"properties": {"name": "Hokkaido", "admin_level": 1}
			}
		]
	}`)
}

func TestParseFeatureCollection(t *testing.T) {
	fc, err := ParseFeatureCollection(squareFeatureJSON())
	if err != nil {
		t.Fatalf("ParseFeatureCollection: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}

	f := fc.Features[0]
	if f.ID != "JP-01" {
		t.Errorf("expected id JP-01, got %q", f.ID)
	}
	if f.Geometry.Type != TypePolygon {
		t.Errorf("expected Polygon, got %q", f.Geometry.Type)
	}
	if len(f.Geometry.Rings) != 1 || len(f.Geometry.Rings[0]) != 5 {
		t.Errorf("unexpected ring shape: %v", f.Geometry.Rings)
	}
}

func TestParseFeatureCollection_WrongType(t *testing.T) {
	_, err := ParseFeatureCollection([]byte(`{"type":"Feature"}`))
	if err == nil {
		t.Fatal("expected error for non-FeatureCollection payload")
	}
}

func TestParseFeatureCollection_Malformed(t *testing.T) {
	_, err := ParseFeatureCollection([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name string
		geom *Geometry
		want bool
	}{
		{"nil", nil, false},
		{"point", &Geometry{Type: TypePoint, Point: []float64{1, 2}}, true},
		{"point missing coords", &Geometry{Type: TypePoint}, false},
		{"linestring", &Geometry{Type: TypeLineString, Line: [][]float64{{0, 0}, {1, 1}}}, true},
		{"polygon", &Geometry{Type: TypePolygon, Rings: [][][]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, true},
		{"polygon empty", &Geometry{Type: TypePolygon}, false},
		{"unsupported", &Geometry{Type: "Circle"}, false},
		{"collection", &Geometry{Type: TypeGeometryCollection, Geometries: []*Geometry{
			{Type: TypePoint, Point: []float64{1, 2}},
		}}, true},
		{"collection with invalid child", &Geometry{Type: TypeGeometryCollection, Geometries: []*Geometry{
			{Type: TypePoint},
		}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.geom.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGeometryComplexity(t *testing.T) {
	tests := []struct {
		name string
		geom *Geometry
		want int
	}{
		{"nil", nil, 0},
		{"point", &Geometry{Type: TypePoint, Point: []float64{1, 2}}, 1},
		{"linestring", &Geometry{Type: TypeLineString, Line: [][]float64{{0, 0}, {1, 1}, {2, 2}}}, 3},
		{"polygon", &Geometry{Type: TypePolygon, Rings: [][][]float64{
			{{0, 0}, {1, 0}, {1, 1}, {0, 0}},
			{{0.2, 0.2}, {0.4, 0.2}, {0.4, 0.4}, {0.2, 0.2}},
		}}, 8},
		{"multipolygon", &Geometry{Type: TypeMultiPolygon, Polygons: [][][][]float64{
			{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
			{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
		}}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.geom.Complexity(); got != tt.want {
				t.Errorf("Complexity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBBoxAndCentroid(t *testing.T) {
	g := &Geometry{Type: TypePolygon, Rings: [][][]float64{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
	}}

	box := g.BBox()
	want := [4]float64{0, 0, 4, 4}
	if box != want {
		t.Errorf("BBox() = %v, want %v", box, want)
	}

	c := g.Centroid()
	// Mean of the five ring vertices: (8/5, 8/5).
	if math.Abs(c[0]-1.6) > 1e-9 || math.Abs(c[1]-1.6) > 1e-9 {
		t.Errorf("Centroid() = %v, want [1.6 1.6]", c)
	}
}

func TestArea(t *testing.T) {
	square := &Geometry{Type: TypePolygon, Rings: [][][]float64{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
	}}
	if got := square.Area(); math.Abs(got-16) > 1e-9 {
		t.Errorf("Area() = %f, want 16", got)
	}

	line := &Geometry{Type: TypeLineString, Line: [][]float64{{0, 0}, {1, 1}}}
	if got := line.Area(); got != 0 {
		t.Errorf("line Area() = %f, want 0", got)
	}
}

func TestGeometryRoundTrip(t *testing.T) {
	fc, err := ParseFeatureCollection(squareFeatureJSON())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	data, err := fc.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	fc2, err := ParseFeatureCollection(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(fc2.Features) != len(fc.Features) {
		t.Errorf("feature count changed: %d != %d", len(fc2.Features), len(fc.Features))
	}
	if fc2.Features[0].Geometry.Complexity() != fc.Features[0].Geometry.Complexity() {
		t.Error("geometry complexity changed across round trip")
	}
}

func TestFeatureClone(t *testing.T) {
	fc, _ := ParseFeatureCollection(squareFeatureJSON())
	orig := fc.Features[0]

	clone := orig.Clone()
	clone.Geometry.Rings[0][0][0] = 99
	clone.Properties["name"] = "mutated"

	if orig.Geometry.Rings[0][0][0] == 99 {
		t.Error("clone shares ring storage with original")
	}
	if orig.Properties["name"] == "mutated" {
		t.Error("clone shares property map with original")
	}
}
