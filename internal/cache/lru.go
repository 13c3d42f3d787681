// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package cache provides the in-memory byte cache used by the download stage
// to avoid refetching raw boundary data.
package cache

import "sync"

// DefaultCapacity is the number of raw downloads kept in memory. Boundary
// payloads run to several megabytes each, so the window is deliberately small.
const DefaultCapacity = 10

// entry is a node in the LRU ordering list.
type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

// ByteCache is a strict least-recently-used cache for raw download payloads.
// Keys follow the form "dataSource:countryCode:adminLevel".
//
// Eviction is a deterministic function of insertion and access order: once
// the cache holds its capacity, inserting a new distinct key evicts exactly
// the least recently used key. There is no TTL; staleness is bounded by the
// capacity window.
//
// The implementation uses a doubly-linked list with sentinel nodes plus a
// map for O(1) Get, Put and eviction.
type ByteCache struct {
	mu sync.Mutex

	capacity int
	items    map[string]*entry

	// head.next is the most recently used, tail.prev the least.
	head *entry
	tail *entry

	hits   int64
	misses int64
}

// NewByteCache creates a cache with the given capacity.
// Non-positive capacities fall back to DefaultCapacity.
func NewByteCache(capacity int) *ByteCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	c := &ByteCache{
		capacity: capacity,
		items:    make(map[string]*entry, capacity),
		head:     &entry{},
		tail:     &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get retrieves the cached bytes for key, or nil if absent.
// A hit moves the entry to the front of the recency order.
func (c *ByteCache) Get(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return nil
	}

	c.moveToFront(e)
	c.hits++
	return e.value
}

// Contains reports whether key is cached without updating recency.
func (c *ByteCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	return ok
}

// Put stores value under key. An existing key is updated and refreshed; a
// new key that pushes the cache over capacity evicts the least recently
// used entry.
func (c *ByteCache) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.addToFront(e)
	c.items[key] = e

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove deletes key from the cache. Returns true if it was present.
func (c *ByteCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeEntry(e)
	return true
}

// Len returns the current number of entries.
func (c *ByteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *ByteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Stats returns hit/miss counters and the current size.
func (c *ByteCache) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

// Internal methods (must be called with mu held)

func (c *ByteCache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *ByteCache) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.addToFront(e)
}

func (c *ByteCache) removeEntry(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, e.key)
}

func (c *ByteCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
