// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package geojson

import "math"

// BBox computes the coordinate extents of a geometry as
// [minLon, minLat, maxLon, maxLat]. A nil or empty geometry yields a zero box.
func (g *Geometry) BBox() [4]float64 {
	box := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	found := false

	g.eachVertex(func(pt []float64) {
		found = true
		box[0] = math.Min(box[0], pt[0])
		box[1] = math.Min(box[1], pt[1])
		box[2] = math.Max(box[2], pt[0])
		box[3] = math.Max(box[3], pt[1])
	})

	if !found {
		return [4]float64{}
	}
	return box
}

// Centroid returns the arithmetic mean of all vertices as [lon, lat].
// For the spatial index this is cheap and stable; it is not a true
// area-weighted centroid.
func (g *Geometry) Centroid() [2]float64 {
	var sumX, sumY float64
	n := 0

	g.eachVertex(func(pt []float64) {
		sumX += pt[0]
		sumY += pt[1]
		n++
	})

	if n == 0 {
		return [2]float64{}
	}
	return [2]float64{sumX / float64(n), sumY / float64(n)}
}

// Area returns the absolute planar area of the geometry in squared degrees
// using the shoelace formula. Outer rings and holes both contribute their
// absolute area; the index only needs a size signal, not signed coverage.
func (g *Geometry) Area() float64 {
	if g == nil {
		return 0
	}

	switch g.Type {
	case TypePolygon:
		return ringsArea(g.Rings)
	case TypeMultiPolygon:
		total := 0.0
		for _, poly := range g.Polygons {
			total += ringsArea(poly)
		}
		return total
	case TypeGeometryCollection:
		total := 0.0
		for _, child := range g.Geometries {
			total += child.Area()
		}
		return total
	default:
		return 0
	}
}

// Perimeter returns the total planar length of all line work in the geometry.
func (g *Geometry) Perimeter() float64 {
	if g == nil {
		return 0
	}

	switch g.Type {
	case TypeLineString:
		return lineLength(g.Line)
	case TypePolygon, TypeMultiLineString:
		total := 0.0
		for _, ring := range g.Rings {
			total += lineLength(ring)
		}
		return total
	case TypeMultiPolygon:
		total := 0.0
		for _, poly := range g.Polygons {
			for _, ring := range poly {
				total += lineLength(ring)
			}
		}
		return total
	case TypeGeometryCollection:
		total := 0.0
		for _, child := range g.Geometries {
			total += child.Perimeter()
		}
		return total
	default:
		return 0
	}
}

// RingArea returns the absolute shoelace area of a single ring.
func RingArea(ring [][]float64) float64 {
	if len(ring) < 3 {
		return 0
	}

	sum := 0.0
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return math.Abs(sum) / 2
}

func ringsArea(rings [][][]float64) float64 {
	total := 0.0
	for _, ring := range rings {
		total += RingArea(ring)
	}
	return total
}

func lineLength(line [][]float64) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		dx := line[i][0] - line[i-1][0]
		dy := line[i][1] - line[i-1][1]
		total += math.Hypot(dx, dy)
	}
	return total
}

// eachVertex visits every [lon, lat] vertex of the geometry.
func (g *Geometry) eachVertex(fn func(pt []float64)) {
	if g == nil {
		return
	}

	visit := func(pt []float64) {
		if len(pt) >= 2 {
			fn(pt)
		}
	}

	switch g.Type {
	case TypePoint:
		visit(g.Point)
	case TypeLineString, TypeMultiPoint:
		for _, pt := range g.Line {
			visit(pt)
		}
	case TypePolygon, TypeMultiLineString:
		for _, ring := range g.Rings {
			for _, pt := range ring {
				visit(pt)
			}
		}
	case TypeMultiPolygon:
		for _, poly := range g.Polygons {
			for _, ring := range poly {
				for _, pt := range ring {
					visit(pt)
				}
			}
		}
	case TypeGeometryCollection:
		for _, child := range g.Geometries {
			child.eachVertex(fn)
		}
	}
}
