// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package pipeline implements the four processing stages: download and
// validation, Douglas-Peucker simplification, shared-arc topology building
// and vector tile generation. Stage failures are recorded on tasks and
// results; they never propagate as panics.
package pipeline

import "errors"

// Error taxonomy codes surfaced on failed tasks and results.
const (
	CodeNetworkError    = "NETWORK_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeCapacityError   = "CAPACITY_ERROR"
	CodeMissingInput    = "MISSING_INPUT"
	CodeConfigError     = "CONFIG_ERROR"
	CodeDatabaseError   = "DATABASE_ERROR"
)

// Sentinel errors for the stage workers.
var (
	ErrMissingInput = errors.New("input buffer not found")
	ErrEmptyData    = errors.New("downloaded data is empty")
	ErrCancelled    = errors.New("task cancelled")
)

// Result statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Result is the common outcome header embedded in every stage result.
type Result struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	DurationMS   int64  `json:"durationMs"`
}

// Completed reports whether the stage finished successfully.
func (r Result) Completed() bool {
	return r.Status == StatusCompleted
}
