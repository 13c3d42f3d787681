// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package store

import (
	"time"

	"github.com/tomtom215/boundarytiles/internal/config"
)

// SessionStatus is the lifecycle state of a batch session.
type SessionStatus string

// Batch session lifecycle states. Cancelled, completed and failed are
// terminal.
const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusFailed    SessionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// BatchSession tracks one batch processing run. LastActivityAt drives the
// 24-hour expiry used by the cleanup service.
type BatchSession struct {
	SessionID      string        `json:"sessionId"`
	WorkingCopyID  string        `json:"workingCopyId"`
	NodeID         string        `json:"nodeId"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	EstimatedSize  int64         `json:"estimatedSize"`
}

// ShapeWorkingCopy is a draft selection of boundary datasets plus the
// processing configuration a batch will run with. UpdatedAt drives the
// 24-hour expiry used by the cleanup service.
type ShapeWorkingCopy struct {
	ID                string                  `json:"id"`
	NodeID            string                  `json:"nodeId"`
	SelectedCountries []string                `json:"selectedCountries"`
	AdminLevels       []int                   `json:"adminLevels"`
	Processing        config.ProcessingConfig `json:"processing"`
	URLMetadata       []config.UrlMetadata    `json:"urlMetadata"`
	Selection         map[string][]int        `json:"selection,omitempty"`
	IsDraft           bool                    `json:"isDraft"`
	EstimatedSize     int64                   `json:"estimatedSize"`
	Version           int                     `json:"version"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}
