// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package mvt projects boundary features into tile-local coordinates and
// encodes Mapbox-Vector-Tile-compatible binary tiles.
package mvt

import "math"

// DefaultExtent is the tile-local coordinate range. 4096 is the conventional
// MVT resolution.
const DefaultExtent = 4096

// TileCoord identifies one slippy-map tile.
type TileCoord struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// TransformCoordinates maps a geographic [lon, lat] coordinate into the
// tile's local pixel space [0, extent] using Web Mercator tile math. The
// tile's own center projects to (extent/2, extent/2) at any zoom.
func TransformCoordinates(lonLat []float64, tile TileCoord, extent int) (float64, float64) {
	lon := lonLat[0]
	lat := lonLat[1]

	// Clamp to the Web Mercator latitude limit.
	const maxLat = 85.05112877980659
	if lat > maxLat {
		lat = maxLat
	}
	if lat < -maxLat {
		lat = -maxLat
	}

	latRad := lat * math.Pi / 180
	worldX := (lon + 180) / 360
	worldY := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2

	n := math.Pow(2, float64(tile.Z))
	px := (worldX*n - float64(tile.X)) * float64(extent)
	py := (worldY*n - float64(tile.Y)) * float64(extent)
	return px, py
}

// TileBounds calculates the geographic bounds of a tile as
// [west, south, east, north] by inverse Web Mercator projection.
func TileBounds(tile TileCoord) [4]float64 {
	n := math.Pow(2, float64(tile.Z))

	west := float64(tile.X)/n*360 - 180
	east := float64(tile.X+1)/n*360 - 180

	northRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(tile.Y)/n)))
	southRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(tile.Y+1)/n)))

	return [4]float64{west, southRad * 180 / math.Pi, east, northRad * 180 / math.Pi}
}
