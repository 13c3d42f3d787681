// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package mvt

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MetadataVersion marks the tile metadata schema.
const MetadataVersion = 1

// TileMetadata describes one generated tile for storage and cache lookups.
type TileMetadata struct {
	Z           int        `json:"z"`
	X           int        `json:"x"`
	Y           int        `json:"y"`
	Size        int        `json:"size"`
	Features    int        `json:"features"`
	Layers      []string   `json:"layers"`
	BBox        [4]float64 `json:"bbox"`
	GeneratedAt time.Time  `json:"generatedAt"`
	ContentHash string     `json:"contentHash"`
	Version     int        `json:"version"`
}

// GenerateTileMetadata derives metadata from the encoded tile bytes and the
// layer data that produced them.
func GenerateTileMetadata(coord TileCoord, data []byte, layers []LayerData) TileMetadata {
	names := make([]string, 0, len(layers))
	featureCount := 0
	for _, layer := range layers {
		names = append(names, layer.Name)
		featureCount += len(layer.Features)
	}

	return TileMetadata{
		Z:           coord.Z,
		X:           coord.X,
		Y:           coord.Y,
		Size:        len(data),
		Features:    featureCount,
		Layers:      names,
		BBox:        TileBounds(coord),
		GeneratedAt: time.Now().UTC(),
		ContentHash: ContentHash(data),
		Version:     MetadataVersion,
	}
}

// ContentHash returns a stable hex digest of the tile bytes.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
