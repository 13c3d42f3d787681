// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package cleanup reaps expired working copies and batch sessions from the
// store. Records are ephemeral by design: anything idle past the TTL is
// removed, with the sole exception of running sessions.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/boundarytiles/internal/config"
	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/metrics"
	"github.com/tomtom215/boundarytiles/internal/pipeline"
	"github.com/tomtom215/boundarytiles/internal/store"
)

// Defaults applied when the configuration leaves cleanup unset.
const (
	DefaultInterval = time.Hour
	DefaultTTL      = 24 * time.Hour
)

// Service removes expired records on a fixed schedule.
type Service struct {
	store    *store.Store
	interval time.Duration
	ttl      time.Duration
}

// New creates a cleanup service. Non-positive interval or TTL fall back to
// the defaults.
func New(st *store.Store, cfg config.CleanupConfig) *Service {
	s := &Service{store: st, interval: cfg.Interval, ttl: cfg.TTL}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	return s
}

// Stats is a point-in-time view of stored records and their expiry state.
type Stats struct {
	WorkingCopies        int   `json:"workingCopies"`
	ExpiredWorkingCopies int   `json:"expiredWorkingCopies"`
	Sessions             int   `json:"sessions"`
	ExpiredSessions      int   `json:"expiredSessions"`
	EstimatedSpaceUsed   int64 `json:"estimatedSpaceUsed"`
}

// Stats reports record counts, how many are past the TTL, and the estimated
// space they occupy. Running sessions are never counted as expired.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	copies, err := s.store.ListWorkingCopies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: list working copies: %w", pipeline.CodeDatabaseError, err)
	}
	sessions, err := s.store.ListBatchSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: list batch sessions: %w", pipeline.CodeDatabaseError, err)
	}

	now := time.Now().UTC()
	stats := &Stats{WorkingCopies: len(copies), Sessions: len(sessions)}
	for _, wc := range copies {
		stats.EstimatedSpaceUsed += wc.EstimatedSize
		if now.Sub(wc.UpdatedAt) > s.ttl {
			stats.ExpiredWorkingCopies++
		}
	}
	for _, session := range sessions {
		stats.EstimatedSpaceUsed += session.EstimatedSize
		if session.Status != store.StatusRunning && now.Sub(session.LastActivityAt) > s.ttl {
			stats.ExpiredSessions++
		}
	}

	logging.Debug().
		Int("working_copies", stats.WorkingCopies).
		Int("expired_working_copies", stats.ExpiredWorkingCopies).
		Int("sessions", stats.Sessions).
		Int("expired_sessions", stats.ExpiredSessions).
		Str("space_used", humanize.Bytes(uint64(max(stats.EstimatedSpaceUsed, 0)))).
		Msg("Cleanup stats collected")
	return stats, nil
}

// Result summarizes one cleanup sweep: per-kind removal counts, the space
// the removed records were estimated to occupy, and when the sweep ran.
type Result struct {
	WorkingCopiesRemoved int       `json:"workingCopiesRemoved"`
	BatchSessionsRemoved int       `json:"batchSessionsRemoved"`
	TotalSpaceRecovered  int64     `json:"totalSpaceRecovered"`
	Timestamp            time.Time `json:"timestamp"`
}

// Total is the overall number of records removed.
func (r *Result) Total() int {
	return r.WorkingCopiesRemoved + r.BatchSessionsRemoved
}

// PerformCleanup removes every record idle past the TTL. Running sessions
// are skipped regardless of age. The partial result is returned even when a
// deletion fails mid-sweep.
func (s *Service) PerformCleanup(ctx context.Context) (*Result, error) {
	started := time.Now()
	res, err := s.sweep(ctx, false)
	metrics.CleanupDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.CleanupErrors.Inc()
		return res, err
	}

	if res.Total() > 0 {
		logging.Info().
			Int("working_copies", res.WorkingCopiesRemoved).
			Int("sessions", res.BatchSessionsRemoved).
			Str("space_recovered", humanize.Bytes(uint64(max(res.TotalSpaceRecovered, 0)))).
			Msg("Cleanup cycle removed expired records")
	}
	return res, nil
}

// ForceCleanup removes all working copies and batch sessions regardless of
// age or status. Intended for host-driven resets.
func (s *Service) ForceCleanup(ctx context.Context) (*Result, error) {
	res, err := s.sweep(ctx, true)
	if err != nil {
		metrics.CleanupErrors.Inc()
		return res, err
	}
	logging.Info().Int("removed", res.Total()).Msg("Forced cleanup removed all records")
	return res, nil
}

func (s *Service) sweep(ctx context.Context, force bool) (*Result, error) {
	now := time.Now().UTC()
	res := &Result{Timestamp: now}

	copies, err := s.store.ListWorkingCopies(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: list working copies: %w", pipeline.CodeDatabaseError, err)
	}
	for _, wc := range copies {
		if !force && now.Sub(wc.UpdatedAt) <= s.ttl {
			continue
		}
		if err := s.store.DeleteWorkingCopy(ctx, wc.ID); err != nil {
			return res, fmt.Errorf("%s: delete working copy %s: %w", pipeline.CodeDatabaseError, wc.ID, err)
		}
		metrics.CleanupRemovals.WithLabelValues("working_copy").Inc()
		res.WorkingCopiesRemoved++
		res.TotalSpaceRecovered += wc.EstimatedSize
	}

	sessions, err := s.store.ListBatchSessions(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: list batch sessions: %w", pipeline.CodeDatabaseError, err)
	}
	for _, session := range sessions {
		if !force {
			if session.Status == store.StatusRunning {
				continue
			}
			if now.Sub(session.LastActivityAt) <= s.ttl {
				continue
			}
		}
		if err := s.store.DeleteBatchSession(ctx, session.SessionID); err != nil {
			return res, fmt.Errorf("%s: delete batch session %s: %w", pipeline.CodeDatabaseError, session.SessionID, err)
		}
		metrics.CleanupRemovals.WithLabelValues("batch_session").Inc()
		res.BatchSessionsRemoved++
		res.TotalSpaceRecovered += session.EstimatedSize
	}
	return res, nil
}

// Serve implements suture.Service. The first sweep happens one full interval
// after start, never immediately; a failed cycle is logged and the schedule
// continues.
func (s *Service) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Dur("ttl", s.ttl).
		Msg("Cleanup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Cleanup service stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.PerformCleanup(ctx); err != nil {
				logging.Error().Err(err).Msg("Cleanup cycle failed")
			}
		}
	}
}
