// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package mvt

import (
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tomtom215/boundarytiles/internal/geojson"
)

// Mapbox Vector Tile field numbers (vector_tile.proto, version 2.1).
const (
	tileLayerField = 3

	layerVersionField = 15
	layerNameField    = 1
	layerFeatureField = 2
	layerKeysField    = 3
	layerValuesField  = 4
	layerExtentField  = 5

	featureTagsField     = 2
	featureTypeField     = 3
	featureGeometryField = 4

	valueStringField = 1
	valueDoubleField = 3
	valueIntField    = 4
	valueBoolField   = 7

	mvtVersion = 2
)

// MVT geometry command IDs.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// MVT geometry types.
const (
	geomPoint   = 1
	geomLine    = 2
	geomPolygon = 3
)

// EncodeTile encodes per-layer features into an MVT-compatible binary tile.
// Features are expected to be pre-filtered by zoom and property whitelist.
func EncodeTile(coord TileCoord, extent int, layers []LayerData) []byte {
	if extent <= 0 {
		extent = DefaultExtent
	}

	var buf []byte
	for _, layer := range layers {
		layerBytes := encodeLayer(coord, extent, layer)
		buf = protowire.AppendTag(buf, tileLayerField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, layerBytes)
	}
	return buf
}

// encodeLayer encodes one layer message with deduplicated keys and values.
func encodeLayer(coord TileCoord, extent int, layer LayerData) []byte {
	keys := []string{}
	keyIndex := map[string]uint64{}
	values := [][]byte{}
	valueIndex := map[string]uint64{}

	var features [][]byte
	for _, f := range layer.Features {
		for _, encoded := range encodeFeature(coord, extent, f, keyIndex, &keys, valueIndex, &values) {
			features = append(features, encoded)
		}
	}

	var buf []byte
	buf = protowire.AppendTag(buf, layerVersionField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, mvtVersion)
	buf = protowire.AppendTag(buf, layerNameField, protowire.BytesType)
	buf = protowire.AppendString(buf, layer.Name)
	for _, feat := range features {
		buf = protowire.AppendTag(buf, layerFeatureField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, feat)
	}
	for _, key := range keys {
		buf = protowire.AppendTag(buf, layerKeysField, protowire.BytesType)
		buf = protowire.AppendString(buf, key)
	}
	for _, val := range values {
		buf = protowire.AppendTag(buf, layerValuesField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, val)
	}
	buf = protowire.AppendTag(buf, layerExtentField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(extent))
	return buf
}

// encodeFeature encodes a feature, flattening GeometryCollections into one
// encoded feature per concrete child geometry.
func encodeFeature(coord TileCoord, extent int, f *geojson.Feature,
	keyIndex map[string]uint64, keys *[]string,
	valueIndex map[string]uint64, values *[][]byte) [][]byte {

	if f == nil || f.Geometry == nil {
		return nil
	}

	tags := encodeTags(f.Properties, keyIndex, keys, valueIndex, values)

	var out [][]byte
	var walk func(g *geojson.Geometry)
	walk = func(g *geojson.Geometry) {
		if g == nil {
			return
		}
		if g.Type == geojson.TypeGeometryCollection {
			for _, child := range g.Geometries {
				walk(child)
			}
			return
		}

		geomType, commands := encodeGeometry(coord, extent, g)
		if len(commands) == 0 {
			return
		}

		var buf []byte
		if len(tags) > 0 {
			buf = protowire.AppendTag(buf, featureTagsField, protowire.BytesType)
			buf = protowire.AppendBytes(buf, packVarints(tags))
		}
		buf = protowire.AppendTag(buf, featureTypeField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(geomType))
		buf = protowire.AppendTag(buf, featureGeometryField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packVarints(commands))
		out = append(out, buf)
	}
	walk(f.Geometry)
	return out
}

// encodeTags interns the feature's properties into the layer key/value
// tables and returns alternating key/value index pairs. Keys are visited in
// sorted order so encoding is deterministic.
func encodeTags(props map[string]any,
	keyIndex map[string]uint64, keys *[]string,
	valueIndex map[string]uint64, values *[][]byte) []uint64 {

	if len(props) == 0 {
		return nil
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var tags []uint64
	for _, name := range names {
		encoded := encodeValue(props[name])
		if encoded == nil {
			continue
		}

		ki, ok := keyIndex[name]
		if !ok {
			ki = uint64(len(*keys))
			keyIndex[name] = ki
			*keys = append(*keys, name)
		}

		vi, ok := valueIndex[string(encoded)]
		if !ok {
			vi = uint64(len(*values))
			valueIndex[string(encoded)] = vi
			*values = append(*values, encoded)
		}

		tags = append(tags, ki, vi)
	}
	return tags
}

// encodeValue encodes a property value message. Unsupported types are
// dropped rather than failing the tile.
func encodeValue(v any) []byte {
	var buf []byte
	switch val := v.(type) {
	case string:
		buf = protowire.AppendTag(buf, valueStringField, protowire.BytesType)
		buf = protowire.AppendString(buf, val)
	case float64:
		buf = protowire.AppendTag(buf, valueDoubleField, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, math.Float64bits(val))
	case int:
		buf = protowire.AppendTag(buf, valueIntField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(int64(val)))
	case int64:
		buf = protowire.AppendTag(buf, valueIntField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(val))
	case bool:
		b := uint64(0)
		if val {
			b = 1
		}
		buf = protowire.AppendTag(buf, valueBoolField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, b)
	default:
		return nil
	}
	return buf
}

func packVarints(vals []uint64) []byte {
	var buf []byte
	for _, v := range vals {
		buf = protowire.AppendVarint(buf, v)
	}
	return buf
}

// geomEncoder emits MVT geometry commands with a persistent cursor.
type geomEncoder struct {
	coord  TileCoord
	extent int
	cursor [2]int32
	cmds   []uint64
}

func command(id, count uint32) uint64 {
	return uint64(id&0x7 | count<<3)
}

func zigzag(v int32) uint64 {
	return uint64(uint32(v<<1) ^ uint32(v>>31))
}

func (e *geomEncoder) project(pt []float64) (int32, int32) {
	px, py := TransformCoordinates(pt, e.coord, e.extent)
	return int32(math.Round(px)), int32(math.Round(py))
}

func (e *geomEncoder) moveTo(pts [][]float64) {
	e.cmds = append(e.cmds, command(cmdMoveTo, uint32(len(pts))))
	e.appendDeltas(pts)
}

func (e *geomEncoder) lineTo(pts [][]float64) {
	if len(pts) == 0 {
		return
	}
	e.cmds = append(e.cmds, command(cmdLineTo, uint32(len(pts))))
	e.appendDeltas(pts)
}

func (e *geomEncoder) closePath() {
	e.cmds = append(e.cmds, command(cmdClosePath, 1))
}

func (e *geomEncoder) appendDeltas(pts [][]float64) {
	for _, pt := range pts {
		x, y := e.project(pt)
		e.cmds = append(e.cmds, zigzag(x-e.cursor[0]), zigzag(y-e.cursor[1]))
		e.cursor[0], e.cursor[1] = x, y
	}
}

func (e *geomEncoder) ring(ring [][]float64) {
	// Drop the closing duplicate; ClosePath implies it.
	if len(ring) > 1 && samePt(ring[0], ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return
	}
	e.moveTo(ring[:1])
	e.lineTo(ring[1:])
	e.closePath()
}

func samePt(a, b []float64) bool {
	return len(a) >= 2 && len(b) >= 2 && a[0] == b[0] && a[1] == b[1]
}

// encodeGeometry converts a concrete geometry into its MVT type and command
// sequence.
func encodeGeometry(coord TileCoord, extent int, g *geojson.Geometry) (int, []uint64) {
	e := &geomEncoder{coord: coord, extent: extent}

	switch g.Type {
	case geojson.TypePoint:
		if len(g.Point) < 2 {
			return geomPoint, nil
		}
		e.moveTo([][]float64{g.Point})
		return geomPoint, e.cmds

	case geojson.TypeMultiPoint:
		if len(g.Line) == 0 {
			return geomPoint, nil
		}
		e.moveTo(g.Line)
		return geomPoint, e.cmds

	case geojson.TypeLineString:
		if len(g.Line) < 2 {
			return geomLine, nil
		}
		e.moveTo(g.Line[:1])
		e.lineTo(g.Line[1:])
		return geomLine, e.cmds

	case geojson.TypeMultiLineString:
		for _, part := range g.Rings {
			if len(part) < 2 {
				continue
			}
			e.moveTo(part[:1])
			e.lineTo(part[1:])
		}
		return geomLine, e.cmds

	case geojson.TypePolygon:
		for _, ring := range g.Rings {
			e.ring(ring)
		}
		return geomPolygon, e.cmds

	case geojson.TypeMultiPolygon:
		for _, poly := range g.Polygons {
			for _, ring := range poly {
				e.ring(ring)
			}
		}
		return geomPolygon, e.cmds

	default:
		return 0, nil
	}
}
