// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package orchestrator

import (
	"context"
	"time"

	"github.com/tomtom215/boundarytiles/internal/logging"
)

const (
	// activityInterval is how often live sessions get their activity
	// timestamp refreshed, so the cleanup TTL never reaps an active batch.
	activityInterval = 30 * time.Second

	// sessionRetention is how long a settled session stays queryable in
	// memory before the runner drops it.
	sessionRetention = 10 * time.Minute
)

// Runner keeps orchestrator housekeeping alive under the supervision tree:
// it refreshes activity timestamps for live sessions and evicts settled
// sessions from memory after a retention window.
type Runner struct {
	orchestrator *Orchestrator
}

// NewRunner wraps an orchestrator as a supervised service.
func NewRunner(o *Orchestrator) *Runner {
	return &Runner{orchestrator: o}
}

// Serve implements suture.Service.
func (r *Runner) Serve(ctx context.Context) error {
	logging.Info().Msg("Orchestrator runner started")
	ticker := time.NewTicker(activityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Orchestrator runner stopping")
			return ctx.Err()
		case <-ticker.C:
			r.orchestrator.housekeep()
		}
	}
}

// housekeep refreshes activity for live sessions and evicts settled ones.
func (o *Orchestrator) housekeep() {
	now := time.Now()

	o.mu.Lock()
	live := make([]string, 0, len(o.sessions))
	for id, session := range o.sessions {
		select {
		case <-session.done:
			if settled := session.settledAt.Load(); settled > 0 && now.Sub(time.Unix(0, settled)) > sessionRetention {
				delete(o.sessions, id)
			}
		default:
			live = append(live, id)
		}
	}
	o.mu.Unlock()

	for _, id := range live {
		o.touchSession(id)
	}
}
