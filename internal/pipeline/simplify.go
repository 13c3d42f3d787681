// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/tomtom215/boundarytiles/internal/geojson"
	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/metrics"
	"github.com/tomtom215/boundarytiles/internal/task"
)

// maxVertexCapRounds bounds the tolerance escalation used to satisfy a
// vertex cap.
const maxVertexCapRounds = 8

// QualityMetrics quantifies how faithful a simplification is to the
// original geometry.
type QualityMetrics struct {
	GeometricAccuracy float64 `json:"geometricAccuracy"`
}

// SimplifyResult is the outcome of one feature-level simplification task.
type SimplifyResult struct {
	Result
	OriginalFeatureCount   int            `json:"originalFeatureCount"`
	SimplifiedFeatureCount int            `json:"simplifiedFeatureCount"`
	ReductionRatio         float64        `json:"reductionRatio"`
	QualityMetrics         QualityMetrics `json:"qualityMetrics"`
	BufferID               string         `json:"bufferId,omitempty"`
}

// SimplifyWorker runs Douglas-Peucker simplification over a published
// feature set.
type SimplifyWorker struct {
	buffers *BufferStore
}

// NewSimplifyWorker creates the first-stage simplification worker.
func NewSimplifyWorker(buffers *BufferStore) *SimplifyWorker {
	return &SimplifyWorker{buffers: buffers}
}

// ProcessSimplification runs one simplification task to a terminal result.
// A missing input buffer is a MISSING_INPUT failure, not an error return.
func (w *SimplifyWorker) ProcessSimplification(ctx context.Context, t *task.Task) *SimplifyResult {
	started := time.Now()
	result := &SimplifyResult{Result: Result{TaskID: t.ID, Status: StatusFailed}}

	cfg, ok := t.Config.(task.SimplifyConfig)
	if !ok {
		return w.fail(t, result, started, CodeConfigError, "simplify task carries no simplify config")
	}

	if t.Stage() == task.StageCancel {
		result.Status = StatusCancelled
		result.DurationMS = time.Since(started).Milliseconds()
		return result
	}
	if err := t.Transition(task.StageProcess); err != nil {
		return w.fail(t, result, started, CodeConfigError, err.Error())
	}

	fc, err := resolveFeatures(w.buffers, t.InputBufferID)
	if err != nil {
		metrics.RecordTaskError(string(task.TypeSimplify1), CodeMissingInput)
		return w.fail(t, result, started, CodeMissingInput, err.Error())
	}

	features := OptimizeFeatures(fc.Features)
	result.OriginalFeatureCount = len(fc.Features)

	simplified := make([]*geojson.Feature, 0, len(features))
	var verticesBefore, verticesAfter int
	var areaDeviation, perimeterDeviation float64

	for i, f := range features {
		// Task cancellation and a dead run context both stop the worker
		// without failing the task.
		if err := checkpoint(ctx, t); err != nil {
			if !t.Stage().Terminal() {
				_ = t.Transition(task.StageCancel)
			}
			result.Status = StatusCancelled
			result.DurationMS = time.Since(started).Milliseconds()
			metrics.RecordStage(string(task.TypeSimplify1), time.Since(started), "cancelled")
			return result
		}

		out := simplifyFeature(f, cfg)
		verticesBefore += f.Geometry.Complexity()
		if out == nil {
			continue // dropped by the minimum area filter
		}

		verticesAfter += out.Geometry.Complexity()
		areaDeviation += relativeDeviation(f.Geometry.Area(), out.Geometry.Area())
		perimeterDeviation += relativeDeviation(f.Geometry.Perimeter(), out.Geometry.Perimeter())
		simplified = append(simplified, out)

		t.SetProgress(float64(i+1) / float64(len(features)) * 100)
	}

	out := geojson.NewFeatureCollection()
	out.Features = simplified

	result.SimplifiedFeatureCount = len(simplified)
	result.ReductionRatio = reductionRatio(verticesBefore, verticesAfter)
	result.QualityMetrics.GeometricAccuracy = geometricAccuracy(areaDeviation, perimeterDeviation, len(simplified))
	result.BufferID = w.buffers.Publish(out)
	result.Status = StatusCompleted
	result.DurationMS = time.Since(started).Milliseconds()

	if err := t.Transition(task.StageSuccess); err != nil {
		logging.Warn().Err(err).Str("task_id", t.ID).Msg("Task left process stage during simplification")
	}
	metrics.RecordStage(string(task.TypeSimplify1), time.Since(started), "success")

	logging.Debug().
		Str("task_id", t.ID).
		Int("original", result.OriginalFeatureCount).
		Int("simplified", result.SimplifiedFeatureCount).
		Float64("reduction", result.ReductionRatio).
		Msg("Feature simplification complete")
	return result
}

func (w *SimplifyWorker) fail(t *task.Task, result *SimplifyResult, started time.Time, code, message string) *SimplifyResult {
	t.Fail(code, message)
	result.Status = StatusFailed
	result.ErrorCode = code
	result.ErrorMessage = message
	result.DurationMS = time.Since(started).Milliseconds()
	metrics.RecordStage(string(task.TypeSimplify1), time.Since(started), "failed")
	return result
}

// reductionRatio is the fraction of vertices removed, clamped to [0, 1].
func reductionRatio(before, after int) float64 {
	if before <= 0 {
		return 0
	}
	ratio := 1 - float64(after)/float64(before)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// geometricAccuracy maps accumulated area and perimeter deviation into
// (0, 1]: zero deviation is 1, growing deviation approaches but never
// reaches 0.
func geometricAccuracy(areaDev, perimDev float64, features int) float64 {
	if features == 0 {
		return 1
	}
	mean := (areaDev + perimDev) / float64(features) / 2
	return 1 / (1 + mean)
}

func relativeDeviation(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return math.Abs(before-after) / math.Abs(before)
}

// ValidateGeometry reports whether a feature carries a usable geometry.
func ValidateGeometry(f *geojson.Feature) bool {
	return f != nil && f.Geometry.Validate()
}

// CalculateComplexity returns the feature's total vertex count.
func CalculateComplexity(f *geojson.Feature) int {
	if f == nil || f.Geometry == nil {
		return 0
	}
	return f.Geometry.Complexity()
}

// OptimizeFeatures drops features with invalid geometry and deduplicates by
// feature ID, keeping the first occurrence. Features without an ID are never
// treated as duplicates of each other.
func OptimizeFeatures(features []*geojson.Feature) []*geojson.Feature {
	seen := make(map[string]bool, len(features))
	out := make([]*geojson.Feature, 0, len(features))

	for _, f := range features {
		if !ValidateGeometry(f) {
			continue
		}
		if f.ID != "" {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
		}
		out = append(out, f)
	}
	return out
}

// simplifyFeature simplifies one feature, returning nil when the minimum
// area filter drops it entirely. The input feature is never mutated.
func simplifyFeature(f *geojson.Feature, cfg task.SimplifyConfig) *geojson.Feature {
	tolerance := cfg.Tolerance

	for round := 0; ; round++ {
		g := simplifyGeometry(f.Geometry, tolerance, cfg)
		if g == nil {
			return nil
		}

		if cfg.MaxVertices <= 0 || g.Complexity() <= cfg.MaxVertices || round >= maxVertexCapRounds {
			out := f.Clone()
			out.Geometry = g
			if out.Metadata == nil {
				out.Metadata = &geojson.FeatureMetadata{}
			}
			out.Metadata.SimplificationLevel = tolerance
			return out
		}

		// Over the vertex cap: escalate tolerance and retry.
		if tolerance == 0 {
			tolerance = 1e-6
		}
		tolerance *= 2
	}
}

func simplifyGeometry(g *geojson.Geometry, tolerance float64, cfg task.SimplifyConfig) *geojson.Geometry {
	switch g.Type {
	case geojson.TypeLineString:
		return &geojson.Geometry{Type: g.Type, Line: DouglasPeucker(g.Line, tolerance)}

	case geojson.TypeMultiLineString:
		lines := make([][][]float64, 0, len(g.Rings))
		for _, line := range g.Rings {
			lines = append(lines, DouglasPeucker(line, tolerance))
		}
		return &geojson.Geometry{Type: g.Type, Rings: lines}

	case geojson.TypePolygon:
		rings := simplifyRings(g.Rings, tolerance, cfg)
		if len(rings) == 0 {
			return nil
		}
		return &geojson.Geometry{Type: g.Type, Rings: rings}

	case geojson.TypeMultiPolygon:
		polys := make([][][][]float64, 0, len(g.Polygons))
		for _, poly := range g.Polygons {
			rings := simplifyRings(poly, tolerance, cfg)
			if len(rings) > 0 {
				polys = append(polys, rings)
			}
		}
		if len(polys) == 0 {
			return nil
		}
		return &geojson.Geometry{Type: g.Type, Polygons: polys}

	case geojson.TypeGeometryCollection:
		children := make([]*geojson.Geometry, 0, len(g.Geometries))
		for _, child := range g.Geometries {
			if out := simplifyGeometry(child, tolerance, cfg); out != nil {
				children = append(children, out)
			}
		}
		return &geojson.Geometry{Type: g.Type, Geometries: children}

	default:
		// Points carry no removable vertices.
		return g.Clone()
	}
}

// simplifyRings simplifies each ring, enforcing the minimum area filter.
// The outer ring (index 0) dropping below the area floor drops the whole
// polygon.
func simplifyRings(rings [][][]float64, tolerance float64, cfg task.SimplifyConfig) [][][]float64 {
	out := make([][][]float64, 0, len(rings))
	for i, ring := range rings {
		if cfg.MinimumArea > 0 && math.Abs(geojson.RingArea(ring)) < cfg.MinimumArea {
			if i == 0 {
				return nil
			}
			continue
		}

		simplified := simplifyRing(ring, tolerance, cfg.PreserveTopology)
		if cfg.MinimumArea > 0 && math.Abs(geojson.RingArea(simplified)) < cfg.MinimumArea {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, simplified)
	}
	return out
}

// simplifyRing simplifies a closed ring. With topology preservation the
// result must stay a valid closed ring without self-intersections; the
// tolerance is halved until it does, falling back to the original ring.
func simplifyRing(ring [][]float64, tolerance float64, preserveTopology bool) [][]float64 {
	if len(ring) < 4 {
		return ring
	}

	tol := tolerance
	for attempt := 0; attempt < 6; attempt++ {
		simplified := DouglasPeucker(ring, tol)
		if len(simplified) < 4 {
			tol /= 2
			continue
		}
		if !preserveTopology {
			return simplified
		}
		if !ringSelfIntersects(simplified) {
			return simplified
		}
		tol /= 2
	}
	return ring
}

// DouglasPeucker simplifies a coordinate sequence with the given tolerance.
// Endpoints are always kept, so closed rings stay closed.
func DouglasPeucker(points [][]float64, tolerance float64) [][]float64 {
	if len(points) <= 2 || tolerance <= 0 {
		return points
	}

	keep := make([]bool, len(points))
	keep[0] = true
	keep[len(points)-1] = true
	dpMark(points, 0, len(points)-1, tolerance, keep)

	out := make([][]float64, 0, len(points))
	for i, pt := range points {
		if keep[i] {
			out = append(out, pt)
		}
	}
	return out
}

func dpMark(points [][]float64, first, last int, tolerance float64, keep []bool) {
	if last-first < 2 {
		return
	}

	maxDist := 0.0
	maxIdx := first
	for i := first + 1; i < last; i++ {
		d := perpendicularDistance(points[i], points[first], points[last])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist > tolerance {
		keep[maxIdx] = true
		dpMark(points, first, maxIdx, tolerance, keep)
		dpMark(points, maxIdx, last, tolerance, keep)
	}
}

// perpendicularDistance is the distance from p to the segment a-b.
func perpendicularDistance(p, a, b []float64) float64 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]

	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p[0]-a[0], p[1]-a[1])
	}

	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	projX := a[0] + t*dx
	projY := a[1] + t*dy
	return math.Hypot(p[0]-projX, p[1]-projY)
}

// ringSelfIntersects reports whether any two non-adjacent edges of a closed
// ring cross.
func ringSelfIntersects(ring [][]float64) bool {
	n := len(ring) - 1 // last point repeats the first
	if n < 4 {
		return false
	}

	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// Skip edges sharing a vertex, including the wrap-around pair.
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a1, a2, b1, b2 []float64) bool {
	d1 := cross2(b1, b2, a1)
	d2 := cross2(b1, b2, a2)
	d3 := cross2(a1, a2, b1)
	d4 := cross2(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross2(o, a, b []float64) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}
