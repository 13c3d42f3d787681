// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package topology

import (
	"sort"

	"github.com/tomtom215/boundarytiles/internal/geojson"
)

// FeatureCollection decodes the topology's arcs back into absolute
// coordinates and emits a GeoJSON-like feature collection. An empty
// topology yields an empty collection.
func (t *Topology) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if t == nil {
		return fc
	}

	// Objects is a map; iterate layer names in sorted order so decoding is
	// deterministic.
	names := make([]string, 0, len(t.Objects))
	for name := range t.Objects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		coll := t.Objects[name]
		if coll == nil {
			continue
		}
		for _, obj := range coll.Geometries {
			fc.Features = append(fc.Features, &geojson.Feature{
				Type:       "Feature",
				ID:         obj.ID,
				Geometry:   t.decodeObject(obj),
				Properties: obj.Properties,
			})
		}
	}

	return fc
}

func (t *Topology) decodeObject(obj *Object) *geojson.Geometry {
	g := &geojson.Geometry{Type: obj.Type}

	switch obj.Type {
	case geojson.TypePoint:
		g.Point = obj.Point
	case geojson.TypeMultiPoint:
		g.Line = obj.MultiPoint
	case geojson.TypeLineString:
		g.Line = t.stitch(obj.LineArcs)
	case geojson.TypePolygon, geojson.TypeMultiLineString:
		g.Rings = make([][][]float64, 0, len(obj.RingArcs))
		for _, refs := range obj.RingArcs {
			g.Rings = append(g.Rings, t.stitch(refs))
		}
	case geojson.TypeMultiPolygon:
		g.Polygons = make([][][][]float64, 0, len(obj.PolyArcs))
		for _, poly := range obj.PolyArcs {
			rings := make([][][]float64, 0, len(poly))
			for _, refs := range poly {
				rings = append(rings, t.stitch(refs))
			}
			g.Polygons = append(g.Polygons, rings)
		}
	case geojson.TypeGeometryCollection:
		g.Geometries = make([]*geojson.Geometry, 0, len(obj.Children))
		for _, child := range obj.Children {
			g.Geometries = append(g.Geometries, t.decodeObject(child))
		}
	}

	return g
}

// stitch concatenates referenced arcs into one coordinate sequence,
// reversing negated references and merging duplicated join points.
func (t *Topology) stitch(refs []int) [][]float64 {
	var out [][]float64

	for _, ref := range refs {
		idx := arcIndex(ref)
		if idx < 0 || idx >= len(t.Arcs) {
			continue
		}

		arc := t.Arcs[idx]
		if ref < 0 {
			arc = reverseArc(arc)
		}

		for i, pt := range arc {
			if i == 0 && len(out) > 0 && samePoint(out[len(out)-1], pt) {
				continue
			}
			out = append(out, pt)
		}
	}

	return out
}

func reverseArc(arc [][]float64) [][]float64 {
	out := make([][]float64, len(arc))
	for i, pt := range arc {
		out[len(arc)-1-i] = pt
	}
	return out
}

func samePoint(a, b []float64) bool {
	return len(a) >= 2 && len(b) >= 2 && a[0] == b[0] && a[1] == b[1]
}
