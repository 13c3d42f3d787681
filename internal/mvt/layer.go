// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package mvt

import (
	"github.com/tomtom215/boundarytiles/internal/geojson"
)

// adminLevelProperty is the feature property layers match on.
const adminLevelProperty = "admin_level"

// LayerConfig declares one tile layer: the admin level it claims, the zoom
// range it is visible in, and the property whitelist carried into the tile.
type LayerConfig struct {
	Name       string   `koanf:"name" json:"name"`
	AdminLevel int      `koanf:"admin_level" json:"adminLevel"`
	MinZoom    int      `koanf:"min_zoom" json:"minZoom"`
	MaxZoom    int      `koanf:"max_zoom" json:"maxZoom"`
	Properties []string `koanf:"properties" json:"properties"`
}

// visibleAt reports whether the layer's [MinZoom, MaxZoom] contains zoom.
func (lc LayerConfig) visibleAt(zoom int) bool {
	return zoom >= lc.MinZoom && zoom <= lc.MaxZoom
}

// claims reports whether the layer owns the feature, matched on the
// feature's admin_level property.
func (lc LayerConfig) claims(f *geojson.Feature) bool {
	if f == nil || f.Properties == nil {
		return false
	}
	level, ok := propertyInt(f.Properties[adminLevelProperty])
	return ok && level == lc.AdminLevel
}

// propertyInt coerces the JSON number representations seen in boundary
// property bags into an int.
func propertyInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// FilterFeaturesByZoom retains a feature only if some layer whose zoom range
// contains zoom claims it. Order is preserved.
func FilterFeaturesByZoom(features []*geojson.Feature, layers []LayerConfig, zoom int) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		for _, lc := range layers {
			if lc.visibleAt(zoom) && lc.claims(f) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// FilterProperties strips any property not declared in the claiming layer's
// whitelist. Features claimed by no layer are left untouched. Filtering
// copies; the input features are never mutated.
func FilterProperties(features []*geojson.Feature, layers []LayerConfig) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))
	for _, f := range features {
		layer, ok := claimingLayer(f, layers)
		if !ok {
			out = append(out, f)
			continue
		}

		filtered := f.Clone()
		filtered.Properties = make(map[string]any, len(layer.Properties))
		for _, key := range layer.Properties {
			if v, exists := f.Properties[key]; exists {
				filtered.Properties[key] = v
			}
		}
		out = append(out, filtered)
	}
	return out
}

func claimingLayer(f *geojson.Feature, layers []LayerConfig) (LayerConfig, bool) {
	for _, lc := range layers {
		if lc.claims(f) {
			return lc, true
		}
	}
	return LayerConfig{}, false
}

// SplitByLayer groups features under the layer that claims them, preserving
// layer declaration order. Unclaimed features are dropped.
func SplitByLayer(features []*geojson.Feature, layers []LayerConfig) []LayerData {
	out := make([]LayerData, 0, len(layers))
	for _, lc := range layers {
		var claimed []*geojson.Feature
		for _, f := range features {
			if lc.claims(f) {
				claimed = append(claimed, f)
			}
		}
		if len(claimed) > 0 {
			out = append(out, LayerData{Name: lc.Name, Features: claimed})
		}
	}
	return out
}

// LayerData is one layer's worth of features ready for encoding.
type LayerData struct {
	Name     string
	Features []*geojson.Feature
}
