// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// BufferStore hands stage outputs to the next stage. Published values are
// treated as immutable: a publisher must not retain a mutable reference, and
// resolvers must not modify what they receive.
type BufferStore struct {
	mu      sync.RWMutex
	buffers map[string]any
}

// NewBufferStore creates an empty buffer registry.
func NewBufferStore() *BufferStore {
	return &BufferStore{buffers: make(map[string]any)}
}

// Publish stores a stage output and returns its buffer ID.
func (b *BufferStore) Publish(v any) string {
	id := uuid.NewString()

	b.mu.Lock()
	b.buffers[id] = v
	b.mu.Unlock()

	return id
}

// Resolve returns a published value. A missing or empty ID is
// ErrMissingInput; the stage worker maps it to a MISSING_INPUT failure.
func (b *BufferStore) Resolve(id string) (any, error) {
	if id == "" {
		return nil, ErrMissingInput
	}

	b.mu.RLock()
	v, ok := b.buffers[id]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("buffer %s: %w", id, ErrMissingInput)
	}
	return v, nil
}

// Release drops a buffer once its consumer is done. Releasing an unknown ID
// is a no-op.
func (b *BufferStore) Release(id string) {
	b.mu.Lock()
	delete(b.buffers, id)
	b.mu.Unlock()
}

// Len returns the number of live buffers.
func (b *BufferStore) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buffers)
}
