// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package spatial computes the per-feature spatial index built during the
// download stage: Morton codes for sortable spatial keys, index entries with
// bbox/centroid/area, and a grid for centroid proximity lookups.
package spatial

// mortonBits is the per-axis quantization width. 16 bits per axis packs both
// axes into a single uint32 Z-order key.
const mortonBits = 16

// MortonCode maps a geographic coordinate to a Z-order curve index.
// Longitude occupies the even bits, latitude the odd bits; the result is a
// deterministic, sortable 32-bit key. Out-of-range inputs are clamped.
func MortonCode(lon, lat float64) uint32 {
	x := quantize(lon, -180, 180)
	y := quantize(lat, -90, 90)
	return interleave(x) | interleave(y)<<1
}

// quantize maps v from [min, max] onto [0, 2^mortonBits - 1].
func quantize(v, min, max float64) uint32 {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}

	const scale = float64(1<<mortonBits - 1)
	return uint32((v - min) / (max - min) * scale)
}

// interleave spreads the low 16 bits of v onto the even bit positions
// using the standard magic-number bit tricks.
func interleave(v uint32) uint32 {
	v &= 0xFFFF
	v = (v | v<<8) & 0x00FF00FF
	v = (v | v<<4) & 0x0F0F0F0F
	v = (v | v<<2) & 0x33333333
	v = (v | v<<1) & 0x55555555
	return v
}
