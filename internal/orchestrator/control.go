// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package orchestrator

import (
	"context"
	"fmt"

	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/store"
	"github.com/tomtom215/boundarytiles/internal/task"
)

// PauseBatchProcessing suspends a running session. In-flight tasks pause at
// their next checkpoint; waiting tasks stay queued until resume.
func (o *Orchestrator) PauseBatchProcessing(ctx context.Context, sessionID string) error {
	session, err := o.activeSession(sessionID)
	if err != nil {
		return err
	}
	if session.cancelled.Load() {
		return fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID)
	}

	session.paused.Store(true)
	for _, t := range session.tasks {
		if t.Stage() == task.StageProcess {
			_ = t.Transition(task.StagePause)
		}
	}

	if err := o.store.UpdateSessionStatus(ctx, sessionID, store.StatusPaused); err != nil {
		return fmt.Errorf("persist paused status: %w", err)
	}
	logging.Info().Str("session_id", sessionID).Msg("Batch session paused")
	return nil
}

// ResumeBatchProcessing resumes a paused session.
func (o *Orchestrator) ResumeBatchProcessing(ctx context.Context, sessionID string) error {
	session, err := o.activeSession(sessionID)
	if err != nil {
		return err
	}
	if session.cancelled.Load() {
		return fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID)
	}

	for _, t := range session.tasks {
		if t.Stage() != task.StagePause {
			continue
		}
		_ = t.Transition(task.StageProcess)
		// A task whose worker finished while it was paused settles now.
		if t.Progress() >= 100 {
			_ = t.Transition(task.StageSuccess)
		}
	}
	session.paused.Store(false)

	if err := o.store.UpdateSessionStatus(ctx, sessionID, store.StatusRunning); err != nil {
		return fmt.Errorf("persist running status: %w", err)
	}
	logging.Info().Str("session_id", sessionID).Msg("Batch session resumed")
	return nil
}

// CancelBatchProcessing cancels a session. Cancellation is terminal and
// idempotent: cancelling an already-cancelled session is a no-op.
func (o *Orchestrator) CancelBatchProcessing(ctx context.Context, sessionID string) error {
	session, err := o.activeSession(sessionID)
	if err != nil {
		return err
	}
	if session.cancelled.Swap(true) {
		return nil
	}

	// Unblock paused workers so they can observe the cancel.
	session.paused.Store(false)
	cancelRemaining(session.tasks...)
	session.cancel()

	logging.Info().Str("session_id", sessionID).Msg("Batch session cancelled")
	return nil
}

// Wait blocks until the session's scheduler goroutine has finished. Intended
// for hosts that need a synchronous batch boundary.
func (o *Orchestrator) Wait(ctx context.Context, sessionID string) error {
	session, err := o.activeSession(sessionID)
	if err != nil {
		return err
	}
	select {
	case <-session.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FindPendingBatchSessions returns the persisted sessions on the given node
// that are candidates for resumption, meaning paused or running.
func (o *Orchestrator) FindPendingBatchSessions(ctx context.Context, nodeID string) ([]*store.BatchSession, error) {
	sessions, err := o.store.SessionsByNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("find pending sessions: %w", err)
	}
	return sessions, nil
}

// BatchStatus is the aggregated view of one session's tasks.
type BatchStatus struct {
	SessionID     string           `json:"sessionId"`
	WorkingCopyID string           `json:"workingCopyId"`
	TotalTasks    int              `json:"totalTasks"`
	Waiting       int              `json:"waiting"`
	Processing    int              `json:"processing"`
	Paused        int              `json:"paused"`
	Succeeded     int              `json:"succeeded"`
	Failed        int              `json:"failed"`
	Cancelled     int              `json:"cancelled"`
	Progress      float64          `json:"progress"`
	Errors        []TaskError      `json:"errors,omitempty"`
	ByType        map[task.Type]int `json:"byType"`
}

// TaskError is one failed task's taxonomy code and message.
type TaskError struct {
	TaskID  string `json:"taskId"`
	Unit    string `json:"unit"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetBatchStatus aggregates the live task state of a session.
func (o *Orchestrator) GetBatchStatus(sessionID string) (*BatchStatus, error) {
	session, err := o.activeSession(sessionID)
	if err != nil {
		return nil, err
	}

	status := &BatchStatus{
		SessionID:     session.id,
		WorkingCopyID: session.workingCopyID,
		TotalTasks:    len(session.tasks),
		ByType:        make(map[task.Type]int),
	}

	var progress float64
	for _, t := range session.tasks {
		status.ByType[t.Type]++
		switch t.Stage() {
		case task.StageWait:
			status.Waiting++
		case task.StageProcess:
			status.Processing++
			progress += t.Progress()
		case task.StagePause:
			status.Paused++
			progress += t.Progress()
		case task.StageSuccess:
			status.Succeeded++
			progress += 100
		case task.StageFailed:
			status.Failed++
			code, message := t.Error()
			status.Errors = append(status.Errors, TaskError{
				TaskID:  t.ID,
				Unit:    t.Unit.Key(),
				Code:    code,
				Message: message,
			})
		case task.StageCancel:
			status.Cancelled++
		}
	}
	if status.TotalTasks > 0 {
		status.Progress = progress / float64(status.TotalTasks)
	}
	return status, nil
}

// activeSession looks up an in-memory session by id.
func (o *Orchestrator) activeSession(sessionID string) (*runningSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, ok := o.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}
