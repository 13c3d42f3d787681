// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package spatial

import (
	"math"
	"sync"
)

// Grid divides geographic space into cells for fast centroid proximity
// queries over index entries. Instead of O(n) comparisons to find features
// near a point, only the cells around the query point are checked.
type Grid struct {
	mu       sync.RWMutex
	cells    map[cellKey][]*IndexEntry
	cellSize float64 // cell size in degrees
	byID     map[string]*IndexEntry
}

type cellKey struct {
	x, y int
}

// NewGrid creates a grid with the given approximate cell size in kilometers.
// Default: 100km, which keeps admin-level-1 regions to a handful of cells.
func NewGrid(cellSizeKm float64) *Grid {
	if cellSizeKm <= 0 {
		cellSizeKm = 100
	}

	// 1 degree ≈ 111km at the equator.
	return &Grid{
		cells:    make(map[cellKey][]*IndexEntry),
		cellSize: cellSizeKm / 111.0,
		byID:     make(map[string]*IndexEntry),
	}
}

func (g *Grid) keyFor(lon, lat float64) cellKey {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}

	return cellKey{
		x: int(math.Floor(lon / g.cellSize)),
		y: int(math.Floor(lat / g.cellSize)),
	}
}

// Insert adds an index entry, keyed by its centroid.
// An entry with the same IndexID replaces the previous one.
func (g *Grid) Insert(e IndexEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.byID[e.IndexID]; ok {
		g.removeLocked(old)
	}

	stored := e
	key := g.keyFor(e.Centroid[0], e.Centroid[1])
	g.cells[key] = append(g.cells[key], &stored)
	g.byID[e.IndexID] = &stored
}

// InsertAll adds a batch of entries.
func (g *Grid) InsertAll(entries []IndexEntry) {
	for _, e := range entries {
		g.Insert(e)
	}
}

// Get returns a copy of the entry with the given index ID.
func (g *Grid) Get(indexID string) (IndexEntry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.byID[indexID]
	if !ok {
		return IndexEntry{}, false
	}
	return *e, true
}

// QueryNearby returns copies of all entries whose centroid lies within
// radiusKm of the given point.
func (g *Grid) QueryNearby(lon, lat, radiusKm float64) []IndexEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	span := int(math.Ceil(radiusKm/111.0/g.cellSize)) + 1
	center := g.keyFor(lon, lat)

	var results []IndexEntry
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for _, e := range g.cells[cellKey{x: center.x + dx, y: center.y + dy}] {
				if haversineKm(lat, lon, e.Centroid[1], e.Centroid[0]) <= radiusKm {
					results = append(results, *e)
				}
			}
		}
	}
	return results
}

// Size returns the number of indexed entries.
func (g *Grid) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byID)
}

// Clear removes all entries.
func (g *Grid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cells = make(map[cellKey][]*IndexEntry)
	g.byID = make(map[string]*IndexEntry)
}

// removeLocked removes an entry from its cell (caller must hold mu).
func (g *Grid) removeLocked(e *IndexEntry) {
	key := g.keyFor(e.Centroid[0], e.Centroid[1])
	entries := g.cells[key]
	for i, cand := range entries {
		if cand.IndexID == e.IndexID {
			entries[i] = entries[len(entries)-1]
			entries = entries[:len(entries)-1]
			break
		}
	}
	if len(entries) == 0 {
		delete(g.cells, key)
	} else {
		g.cells[key] = entries
	}
	delete(g.byID, e.IndexID)
}

// haversineKm calculates the spherical distance between two points in km.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
