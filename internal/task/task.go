// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package task defines the pipeline task model: task types, the per-task
// stage state machine, and the typed per-stage configuration variants.
//
// A task is an explicit state-machine value advanced by the orchestrator's
// scheduler loop. Pause and cancel are cooperative: workers observe the
// task's stage at safe checkpoints (between features or tile layers) and
// stop without corrupting published output.
package task

import (
	"fmt"
	"sync"
	"time"
)

// Type identifies the pipeline stage a task belongs to.
type Type string

// Pipeline stage types, in dependency order.
const (
	TypeDownload   Type = "download"
	TypeSimplify1  Type = "simplify1"
	TypeSimplify2  Type = "simplify2"
	TypeVectorTile Type = "vectortile"
)

// Stage is the lifecycle state of a task.
type Stage string

// Task stages. Success, failed and cancel are terminal.
const (
	StageWait    Stage = "wait"
	StageProcess Stage = "process"
	StageSuccess Stage = "success"
	StageFailed  Stage = "failed"
	StagePause   Stage = "pause"
	StageCancel  Stage = "cancel"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Stage) Terminal() bool {
	return s == StageSuccess || s == StageFailed || s == StageCancel
}

// transitions encodes the allowed stage graph:
//
//	wait → process → {success, failed}
//	process → pause → process
//	{wait, process} → cancel
//	pause → cancel
var transitions = map[Stage][]Stage{
	StageWait:    {StageProcess, StageCancel},
	StageProcess: {StageSuccess, StageFailed, StagePause, StageCancel},
	StagePause:   {StageProcess, StageCancel},
}

// CanTransition reports whether from → to is a legal stage transition.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Unit identifies the (country, adminLevel[, zoom]) slice of work a task
// operates on. Tasks of different units have no ordering relationship.
type Unit struct {
	CountryCode string `json:"countryCode"`
	AdminLevel  int    `json:"adminLevel"`
	Zoom        int    `json:"zoom,omitempty"` // vector tile tasks only
}

// Key returns a stable identity for dependency lookups.
func (u Unit) Key() string {
	return fmt.Sprintf("%s:%d", u.CountryCode, u.AdminLevel)
}

// Config is the tagged per-stage configuration variant.
type Config interface {
	taskConfig()
}

// DownloadConfig configures a download task.
type DownloadConfig struct {
	URL         string
	DataSource  string
	CountryCode string
	AdminLevel  int
	Timeout     time.Duration

	// Caller-level retry hints, echoed on a failed result. The worker
	// performs a single attempt per task; zero values fall back to the
	// worker's configured defaults.
	RetryAttempts int
	RetryDelay    time.Duration
}

// SimplifyConfig configures a feature-level simplification task.
type SimplifyConfig struct {
	Tolerance        float64
	PreserveTopology bool
	MinimumArea      float64
	MaxVertices      int
}

// TopologyConfig configures a topology-preserving simplification task.
type TopologyConfig struct {
	Quantization float64
	Presimplify  bool
}

// TileConfig configures a vector tile generation task.
type TileConfig struct {
	Zoom   int
	X      int
	Y      int
	Extent int
}

func (DownloadConfig) taskConfig() {}
func (SimplifyConfig) taskConfig() {}
func (TopologyConfig) taskConfig() {}
func (TileConfig) taskConfig()     {}

// Task is one schedulable unit of pipeline work. Stage and progress are
// mutated only by the owning worker and the orchestrator's pause/cancel
// controls; tasks are never deleted individually.
type Task struct {
	ID            string
	SessionID     string
	Type          Type
	Unit          Unit
	Config        Config
	InputBufferID string

	mu           sync.Mutex
	stage        Stage
	progress     float64
	errorCode    string
	errorMessage string
}

// New creates a task in the wait stage.
func New(id, sessionID string, typ Type, unit Unit, cfg Config) *Task {
	return &Task{
		ID:        id,
		SessionID: sessionID,
		Type:      typ,
		Unit:      unit,
		Config:    cfg,
		stage:     StageWait,
	}
}

// Stage returns the current lifecycle stage.
func (t *Task) Stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Transition moves the task to the given stage if the transition is legal.
func (t *Task) Transition(to Stage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !CanTransition(t.stage, to) {
		return fmt.Errorf("illegal task transition %s → %s (task %s)", t.stage, to, t.ID)
	}
	t.stage = to
	return nil
}

// Progress returns the completion percentage in [0, 100].
func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// SetProgress records completion percentage, clamped to [0, 100].
func (t *Task) SetProgress(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	t.progress = p
}

// Fail marks the task failed with the given taxonomy code and message.
// Failures are data, not panics; the error stays visible for the host UI.
func (t *Task) Fail(code, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if CanTransition(t.stage, StageFailed) {
		t.stage = StageFailed
	}
	t.errorCode = code
	t.errorMessage = message
}

// Error returns the failure code and message, empty if the task has not failed.
func (t *Task) Error() (code, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorCode, t.errorMessage
}

// Interrupted reports whether a worker should stop at its next checkpoint.
// Both pause and cancel interrupt; the scheduler decides whether the task
// re-enters process later. Re-running from the immutable input buffer is
// idempotent.
func (t *Task) Interrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage == StagePause || t.stage == StageCancel
}
