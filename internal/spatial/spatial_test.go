// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package spatial

import (
	"testing"

	"github.com/tomtom215/boundarytiles/internal/geojson"
)

func TestMortonCode_Deterministic(t *testing.T) {
	a := MortonCode(139.69, 35.68) // Tokyo
	b := MortonCode(139.69, 35.68)
	if a != b {
		t.Errorf("MortonCode not deterministic: %d != %d", a, b)
	}
}

func TestMortonCode_Ordering(t *testing.T) {
	// Z-order keys for well-separated points must differ.
	tokyo := MortonCode(139.69, 35.68)
	berlin := MortonCode(13.40, 52.52)
	sydney := MortonCode(151.21, -33.87)

	if tokyo == berlin || berlin == sydney || tokyo == sydney {
		t.Errorf("expected distinct codes, got %d, %d, %d", tokyo, berlin, sydney)
	}

	// Nearby points share high-order bits more than distant ones.
	shinjuku := MortonCode(139.70, 35.69)
	if tokyo^shinjuku >= tokyo^sydney {
		t.Errorf("expected nearby points to differ less: tokyo^shinjuku=%d tokyo^sydney=%d",
			tokyo^shinjuku, tokyo^sydney)
	}
}

func TestMortonCode_Clamping(t *testing.T) {
	if MortonCode(-200, 0) != MortonCode(-180, 0) {
		t.Error("expected longitude below -180 to clamp")
	}
	if MortonCode(0, 95) != MortonCode(0, 90) {
		t.Error("expected latitude above 90 to clamp")
	}
}

func squareFeature(id string, offset float64) *geojson.Feature {
	return &geojson.Feature{
		Type: "Feature",
		ID:   id,
		Geometry: &geojson.Geometry{
			Type: geojson.TypePolygon,
			Rings: [][][]float64{{
				{offset, offset}, {offset + 2, offset}, {offset + 2, offset + 2},
				{offset, offset + 2}, {offset, offset},
			}},
		},
	}
}

func TestBuildIndexEntry(t *testing.T) {
	e := BuildIndexEntry(squareFeature("JP-13", 0), 0)

	if e.FeatureID != "JP-13" {
		t.Errorf("expected feature id JP-13, got %q", e.FeatureID)
	}
	if e.Complexity != 5 {
		t.Errorf("expected complexity 5, got %d", e.Complexity)
	}
	if e.Area == 0 {
		t.Error("expected non-zero area for polygon")
	}
	want := [4]float64{0, 0, 2, 2}
	if e.BBox != want {
		t.Errorf("BBox = %v, want %v", e.BBox, want)
	}
}

func TestBuildIndexEntry_MissingID(t *testing.T) {
	f := squareFeature("", 0)
	e := BuildIndexEntry(f, 7)
	if e.FeatureID != "feature-7" {
		t.Errorf("expected synthesized feature id, got %q", e.FeatureID)
	}
}

func TestBuildIndex_OnePerFeature(t *testing.T) {
	features := []*geojson.Feature{
		squareFeature("a", 0),
		squareFeature("b", 10),
		squareFeature("c", 20),
	}

	entries := BuildIndex(features)
	if len(entries) != len(features) {
		t.Fatalf("expected %d entries, got %d", len(features), len(entries))
	}
}

func TestGrid_QueryNearby(t *testing.T) {
	g := NewGrid(100)

	entries := BuildIndex([]*geojson.Feature{
		squareFeature("near", 0),   // centroid ~(0.8, 0.8)
		squareFeature("far", 100),  // far away
	})
	g.InsertAll(entries)

	if g.Size() != 2 {
		t.Fatalf("expected 2 entries, got %d", g.Size())
	}

	results := g.QueryNearby(0.8, 0.8, 50)
	if len(results) != 1 {
		t.Fatalf("expected 1 nearby entry, got %d", len(results))
	}
	if results[0].FeatureID != "near" {
		t.Errorf("expected feature 'near', got %q", results[0].FeatureID)
	}
}

func TestGrid_ReplaceAndClear(t *testing.T) {
	g := NewGrid(100)

	e := BuildIndexEntry(squareFeature("a", 0), 0)
	g.Insert(e)
	g.Insert(e) // same IndexID replaces, no duplicate

	if g.Size() != 1 {
		t.Errorf("expected 1 entry after duplicate insert, got %d", g.Size())
	}

	g.Clear()
	if g.Size() != 0 {
		t.Errorf("expected empty grid after Clear, got %d", g.Size())
	}
}
