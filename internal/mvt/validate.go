// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package mvt

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// LargeTileThreshold is the size above which a tile is flagged as large.
// Large tiles remain valid; the flag only surfaces in warnings.
const LargeTileThreshold = 500 * 1024

// TileValidation is the outcome of checking encoded tile bytes.
type TileValidation struct {
	Valid    bool     `json:"valid"`
	Code     string   `json:"code,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateTileData checks encoded tile bytes. Empty data is invalid with
// code EMPTY_TILE. Oversized tiles stay valid but carry a warning.
func ValidateTileData(data []byte) TileValidation {
	if len(data) == 0 {
		return TileValidation{Valid: false, Code: "EMPTY_TILE"}
	}

	v := TileValidation{Valid: true}
	if len(data) > LargeTileThreshold {
		v.Warnings = append(v.Warnings, "large tile: consider higher simplification or fewer properties")
	}
	return v
}

// OptimizeTileData drops layers that carry no features. The result is never
// larger than the input, and never empty when the input was non-empty: if
// every layer is featureless the input is returned unchanged.
func OptimizeTileData(data []byte) []byte {
	if len(data) == 0 {
		return data
	}

	var out []byte
	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return data
		}
		fieldLen := protowire.ConsumeFieldValue(num, typ, rest[n:])
		if fieldLen < 0 {
			return data
		}
		field := rest[:n+fieldLen]
		rest = rest[n+fieldLen:]

		if num == tileLayerField && typ == protowire.BytesType {
			layerBytes, m := protowire.ConsumeBytes(field[n:])
			if m < 0 {
				return data
			}
			if !layerHasFeatures(layerBytes) {
				continue
			}
		}
		out = append(out, field...)
	}

	if len(out) == 0 {
		return data
	}
	return out
}

func layerHasFeatures(layer []byte) bool {
	rest := layer
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return true
		}
		if num == layerFeatureField && typ == protowire.BytesType {
			return true
		}
		fieldLen := protowire.ConsumeFieldValue(num, typ, rest[n:])
		if fieldLen < 0 {
			return true
		}
		rest = rest[n+fieldLen:]
	}
	return false
}
