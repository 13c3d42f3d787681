// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package topology

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tomtom215/boundarytiles/internal/geojson"
)

// DefaultQuantization is the grid factor used when a task does not set one.
// Coordinates are snapped to a grid of resolution 1/quantization degrees.
const DefaultQuantization = 1e4

type qpoint [2]int64

// qline is a quantized polyline; closed lines are rings whose last point
// repeats the first.
type qline struct {
	pts    []qpoint
	closed bool
}

// neighborInfo tracks how a point has been seen across all lines. A point
// whose neighborhood differs between appearances is a junction: an arc must
// start or end there so that shared borders become shared arcs.
type neighborInfo struct {
	sig      string
	junction bool
}

type builder struct {
	quantization float64
	presimplify  bool

	lines     []*qline
	neighbors map[qpoint]*neighborInfo

	arcs  [][][]float64
	index map[string]int
}

// Build encodes features into a Topology under the given object name.
// Coordinates are quantized to a 1/quantization grid; identical boundary
// segments (in either direction) collapse into shared arcs. When presimplify
// is set, collinear points are removed before arcs are cut. A nil or empty
// feature slice yields an empty topology.
func Build(name string, features []*geojson.Feature, quantization float64, presimplify bool) (*Topology, error) {
	if quantization <= 0 {
		quantization = DefaultQuantization
	}
	if name == "" {
		name = "boundaries"
	}

	b := &builder{
		quantization: quantization,
		presimplify:  presimplify,
		neighbors:    make(map[qpoint]*neighborInfo),
		arcs:         [][][]float64{},
		index:        make(map[string]int),
	}

	// Pass 1: quantize every geometry and register point neighborhoods.
	prepared := make([]*preparedFeature, 0, len(features))
	for i, f := range features {
		pf, err := b.prepare(f, i)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, pf)
	}
	for _, line := range b.lines {
		b.recordNeighbors(line)
	}

	// Pass 2: cut lines at junctions and deduplicate arcs.
	objects := make([]*Object, 0, len(prepared))
	for _, pf := range prepared {
		objects = append(objects, b.emit(pf))
	}

	return &Topology{
		Type:    "Topology",
		Arcs:    b.arcs,
		Objects: map[string]*GeometryCollection{name: {Type: "GeometryCollection", Geometries: objects}},
	}, nil
}

// preparedFeature mirrors a feature's geometry with quantized lines.
type preparedFeature struct {
	id         string
	properties map[string]any
	geom       *preparedGeometry
}

type preparedGeometry struct {
	typ      geojson.GeometryType
	point    []float64
	points   [][]float64
	lines    []*qline   // LineString (1) / MultiLineString / Polygon rings
	polygons [][]*qline // MultiPolygon
	children []*preparedGeometry
}

func (b *builder) prepare(f *geojson.Feature, ordinal int) (*preparedFeature, error) {
	if f == nil || f.Geometry == nil {
		return nil, fmt.Errorf("feature %d has no geometry", ordinal)
	}

	id := f.ID
	if id == "" {
		id = fmt.Sprintf("feature-%d", ordinal)
	}

	geom, err := b.prepareGeometry(f.Geometry)
	if err != nil {
		return nil, fmt.Errorf("feature %s: %w", id, err)
	}

	return &preparedFeature{id: id, properties: f.Properties, geom: geom}, nil
}

func (b *builder) prepareGeometry(g *geojson.Geometry) (*preparedGeometry, error) {
	pg := &preparedGeometry{typ: g.Type}

	switch g.Type {
	case geojson.TypePoint:
		pg.point = b.roundPoint(g.Point)
	case geojson.TypeMultiPoint:
		pg.points = make([][]float64, len(g.Line))
		for i, pt := range g.Line {
			pg.points[i] = b.roundPoint(pt)
		}
	case geojson.TypeLineString:
		pg.lines = []*qline{b.newLine(g.Line, false)}
	case geojson.TypeMultiLineString:
		for _, part := range g.Rings {
			pg.lines = append(pg.lines, b.newLine(part, false))
		}
	case geojson.TypePolygon:
		for _, ring := range g.Rings {
			pg.lines = append(pg.lines, b.newLine(ring, true))
		}
	case geojson.TypeMultiPolygon:
		for _, poly := range g.Polygons {
			rings := make([]*qline, 0, len(poly))
			for _, ring := range poly {
				rings = append(rings, b.newLine(ring, true))
			}
			pg.polygons = append(pg.polygons, rings)
		}
	case geojson.TypeGeometryCollection:
		for _, child := range g.Geometries {
			pc, err := b.prepareGeometry(child)
			if err != nil {
				return nil, err
			}
			pg.children = append(pg.children, pc)
		}
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}

	return pg, nil
}

// newLine quantizes a coordinate sequence, drops consecutive duplicates and
// optionally removes collinear interior points. Closed lines are normalized
// to repeat their first point at the end.
func (b *builder) newLine(coords [][]float64, closed bool) *qline {
	pts := make([]qpoint, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		q := b.quantizePoint(c)
		if len(pts) > 0 && pts[len(pts)-1] == q {
			continue
		}
		pts = append(pts, q)
	}

	if closed && len(pts) > 1 {
		if pts[0] != pts[len(pts)-1] {
			pts = append(pts, pts[0])
		}
	}

	if b.presimplify {
		pts = removeCollinear(pts, closed)
	}

	line := &qline{pts: pts, closed: closed}
	b.lines = append(b.lines, line)
	return line
}

func (b *builder) quantizePoint(c []float64) qpoint {
	return qpoint{
		int64(math.Round(c[0] * b.quantization)),
		int64(math.Round(c[1] * b.quantization)),
	}
}

func (b *builder) dequantize(p qpoint) []float64 {
	return []float64{float64(p[0]) / b.quantization, float64(p[1]) / b.quantization}
}

func (b *builder) roundPoint(c []float64) []float64 {
	if len(c) < 2 {
		return c
	}
	return b.dequantize(b.quantizePoint(c))
}

// removeCollinear drops interior points that continue the incoming segment
// in the same direction. The test is symmetric under reversal, so shared
// borders presimplify identically on both sides.
func removeCollinear(pts []qpoint, closed bool) []qpoint {
	n := len(pts)
	if n < 3 {
		return pts
	}

	limit := n
	if closed {
		limit = n - 1 // last repeats first
	}

	kept := make([]qpoint, 0, n)
	kept = append(kept, pts[0])
	for i := 1; i < limit; i++ {
		if !closed && i == limit-1 {
			kept = append(kept, pts[i]) // open line endpoint always survives
			break
		}

		next := pts[0]
		if i+1 < limit {
			next = pts[i+1]
		}
		if !collinearForward(kept[len(kept)-1], pts[i], next) {
			kept = append(kept, pts[i])
		}
	}

	if closed {
		kept = append(kept, kept[0])
		if len(kept) < 4 {
			return pts // too degenerate, keep the original ring
		}
	}
	return kept
}

// collinearForward reports whether b lies on the segment a→c continuing in
// the same direction.
func collinearForward(a, b, c qpoint) bool {
	cross := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	if cross != 0 {
		return false
	}
	dot := (b[0]-a[0])*(c[0]-b[0]) + (b[1]-a[1])*(c[1]-b[1])
	return dot > 0
}

// recordNeighbors registers the cyclic (or linear) neighborhood of every
// point of a line. Open line endpoints are always junctions.
func (b *builder) recordNeighbors(line *qline) {
	pts := line.pts
	n := len(pts)
	if n == 0 {
		return
	}

	if line.closed && n > 1 {
		m := n - 1 // cyclic length, last repeats first
		for i := 0; i < m; i++ {
			prev := pts[(i-1+m)%m]
			next := pts[(i+1)%m]
			b.visit(pts[i], prev, next)
		}
		return
	}

	b.markJunction(pts[0])
	b.markJunction(pts[n-1])
	for i := 1; i < n-1; i++ {
		b.visit(pts[i], pts[i-1], pts[i+1])
	}
}

func (b *builder) visit(p, prev, next qpoint) {
	sig := neighborSig(prev, next)
	info, ok := b.neighbors[p]
	if !ok {
		b.neighbors[p] = &neighborInfo{sig: sig}
		return
	}
	if info.sig != sig {
		info.junction = true
	}
}

func (b *builder) markJunction(p qpoint) {
	if info, ok := b.neighbors[p]; ok {
		info.junction = true
		return
	}
	b.neighbors[p] = &neighborInfo{junction: true}
}

// neighborSig is an order-independent encoding of a point's two neighbors.
func neighborSig(a, c qpoint) string {
	ka, kc := pointKey(a), pointKey(c)
	if kc < ka {
		ka, kc = kc, ka
	}
	return ka + "|" + kc
}

func pointKey(p qpoint) string {
	return strconv.FormatInt(p[0], 10) + "," + strconv.FormatInt(p[1], 10)
}

func (b *builder) isJunction(p qpoint) bool {
	info, ok := b.neighbors[p]
	return ok && info.junction
}

// emit converts a prepared feature into a topology object, cutting its
// lines into deduplicated arcs.
func (b *builder) emit(pf *preparedFeature) *Object {
	obj := b.emitGeometry(pf.geom)
	obj.ID = pf.id
	obj.Properties = pf.properties
	return obj
}

func (b *builder) emitGeometry(pg *preparedGeometry) *Object {
	obj := &Object{Type: pg.typ}

	switch pg.typ {
	case geojson.TypePoint:
		obj.Point = pg.point
	case geojson.TypeMultiPoint:
		obj.MultiPoint = pg.points
	case geojson.TypeLineString:
		obj.LineArcs = b.cutLine(pg.lines[0])
	case geojson.TypeMultiLineString, geojson.TypePolygon:
		obj.RingArcs = make([][]int, 0, len(pg.lines))
		for _, line := range pg.lines {
			obj.RingArcs = append(obj.RingArcs, b.cutLine(line))
		}
	case geojson.TypeMultiPolygon:
		obj.PolyArcs = make([][][]int, 0, len(pg.polygons))
		for _, rings := range pg.polygons {
			refs := make([][]int, 0, len(rings))
			for _, ring := range rings {
				refs = append(refs, b.cutLine(ring))
			}
			obj.PolyArcs = append(obj.PolyArcs, refs)
		}
	case geojson.TypeGeometryCollection:
		obj.Children = make([]*Object, 0, len(pg.children))
		for _, child := range pg.children {
			obj.Children = append(obj.Children, b.emitGeometry(child))
		}
	}

	return obj
}

// cutLine splits a line at junction points and returns arc references.
func (b *builder) cutLine(line *qline) []int {
	pts := line.pts
	if len(pts) < 2 {
		if len(pts) == 1 {
			return []int{b.arcRef(pts)}
		}
		return []int{}
	}

	if line.closed {
		pts = rotateToJunction(pts, b.isJunction)
	}

	var refs []int
	start := 0
	for i := 1; i < len(pts); i++ {
		if i == len(pts)-1 || b.isJunction(pts[i]) {
			refs = append(refs, b.arcRef(pts[start:i+1]))
			start = i
		}
	}
	return refs
}

// rotateToJunction rotates a closed ring so it starts at its first junction
// point, keeping shared segments aligned across adjacent rings.
// pts has its first point repeated at the end.
func rotateToJunction(pts []qpoint, isJunction func(qpoint) bool) []qpoint {
	m := len(pts) - 1
	for k := 0; k < m; k++ {
		if isJunction(pts[k]) {
			if k == 0 {
				return pts
			}
			rotated := make([]qpoint, 0, len(pts))
			rotated = append(rotated, pts[k:m]...)
			rotated = append(rotated, pts[:k]...)
			rotated = append(rotated, pts[k])
			return rotated
		}
	}
	return pts
}

// arcRef returns the reference for a segment, reusing an existing arc when
// the same segment was already registered in either direction.
func (b *builder) arcRef(seg []qpoint) int {
	fk := segKey(seg)
	if idx, ok := b.index[fk]; ok {
		return idx
	}

	rev := make([]qpoint, len(seg))
	for i, p := range seg {
		rev[len(seg)-1-i] = p
	}
	if idx, ok := b.index[segKey(rev)]; ok {
		return -1 - idx
	}

	idx := len(b.arcs)
	b.index[fk] = idx

	arc := make([][]float64, len(seg))
	for i, p := range seg {
		arc[i] = b.dequantize(p)
	}
	b.arcs = append(b.arcs, arc)
	return idx
}

func segKey(seg []qpoint) string {
	var sb strings.Builder
	for _, p := range seg {
		sb.WriteString(pointKey(p))
		sb.WriteByte(';')
	}
	return sb.String()
}
