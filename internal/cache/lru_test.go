// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package cache

import (
	"fmt"
	"testing"
)

func TestByteCache_BasicOperations(t *testing.T) {
	c := NewByteCache(3)

	c.Put("GADM:JP:1", []byte("japan"))
	c.Put("GADM:DE:1", []byte("germany"))

	if got := c.Get("GADM:JP:1"); string(got) != "japan" {
		t.Errorf("expected japan, got %q", got)
	}
	if got := c.Get("GADM:FR:1"); got != nil {
		t.Errorf("expected nil for missing key, got %q", got)
	}
	if c.Len() != 2 {
		t.Errorf("expected len 2, got %d", c.Len())
	}
}

func TestByteCache_UpdateRefreshesRecency(t *testing.T) {
	c := NewByteCache(2)

	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("a", []byte("3")) // refresh 'a'
	c.Put("c", []byte("4")) // should evict 'b'

	if got := c.Get("b"); got != nil {
		t.Error("expected 'b' to be evicted")
	}
	if got := c.Get("a"); string(got) != "3" {
		t.Errorf("expected updated value for 'a', got %q", got)
	}
}

func TestByteCache_GetRefreshesRecency(t *testing.T) {
	c := NewByteCache(3)

	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))

	c.Get("a") // 'b' is now LRU
	c.Put("d", []byte("4"))

	if c.Get("b") != nil {
		t.Error("expected 'b' to be evicted after 'a' was accessed")
	}
	for _, key := range []string{"a", "c", "d"} {
		if c.Get(key) == nil {
			t.Errorf("expected %q to be present", key)
		}
	}
}

// Inserting 15 distinct keys into a capacity-10 cache must leave the 10 most
// recently inserted retrievable and the 5 oldest unretrievable.
func TestByteCache_CapacityWindow(t *testing.T) {
	c := NewByteCache(DefaultCapacity)

	for i := 0; i < 15; i++ {
		key := fmt.Sprintf("GADM:C%02d:1", i)
		c.Put(key, []byte{byte(i)})
	}

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("GADM:C%02d:1", i)
		if c.Get(key) != nil {
			t.Errorf("expected %q to be evicted", key)
		}
	}
	for i := 5; i < 15; i++ {
		key := fmt.Sprintf("GADM:C%02d:1", i)
		if c.Get(key) == nil {
			t.Errorf("expected %q to be retrievable", key)
		}
	}
	if c.Len() != DefaultCapacity {
		t.Errorf("expected len %d, got %d", DefaultCapacity, c.Len())
	}
}

func TestByteCache_RemoveAndClear(t *testing.T) {
	c := NewByteCache(5)

	c.Put("a", []byte("1"))
	if !c.Remove("a") {
		t.Error("expected Remove to report presence")
	}
	if c.Remove("a") {
		t.Error("expected Remove on absent key to report false")
	}

	c.Put("b", []byte("2"))
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Len())
	}
	if c.Get("b") != nil {
		t.Error("expected nil after Clear")
	}
}

func TestByteCache_Stats(t *testing.T) {
	c := NewByteCache(2)

	c.Put("a", []byte("1"))
	c.Get("a")
	c.Get("missing")

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("Stats() = (%d, %d, %d), want (1, 1, 1)", hits, misses, size)
	}
}
