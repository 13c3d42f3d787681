// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package orchestrator expands batch requests into dependency-ordered
// pipeline tasks and schedules them across bounded worker pools. Per-task
// failures are recorded and aggregated; they never abort sibling units.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/boundarytiles/internal/config"
	"github.com/tomtom215/boundarytiles/internal/geojson"
	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/metrics"
	"github.com/tomtom215/boundarytiles/internal/pipeline"
	"github.com/tomtom215/boundarytiles/internal/store"
	"github.com/tomtom215/boundarytiles/internal/task"
	"github.com/tomtom215/boundarytiles/internal/topology"
)

// ErrSessionNotFound is returned for control operations on unknown sessions.
var ErrSessionNotFound = errors.New("batch session not found")

// ErrSessionTerminal is returned when pausing or resuming a session that has
// already reached a terminal status. Cancel is idempotent instead.
var ErrSessionTerminal = errors.New("batch session already terminal")

// Workers bundles the four stage workers the orchestrator dispatches to.
type Workers struct {
	Download *pipeline.DownloadWorker
	Simplify *pipeline.SimplifyWorker
	Topology *pipeline.TopologyWorker
	Tile     *pipeline.TileWorker
}

// Orchestrator runs batch sessions. One orchestrator serves one node.
type Orchestrator struct {
	nodeID   string
	store    *store.Store
	buffers  *pipeline.BufferStore
	workers  Workers
	simplify config.SimplifyConfig
	topo     config.TopologyConfig
	extent   int

	mu       sync.Mutex
	sessions map[string]*runningSession
}

// New creates an orchestrator for the given node.
func New(nodeID string, st *store.Store, buffers *pipeline.BufferStore, workers Workers, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		nodeID:   nodeID,
		store:    st,
		buffers:  buffers,
		workers:  workers,
		simplify: cfg.Simplify,
		topo:     cfg.Topology,
		extent:   cfg.Tiles.Extent,
		sessions: make(map[string]*runningSession),
	}
}

// runningSession is the in-memory state of an active batch.
type runningSession struct {
	id            string
	workingCopyID string
	tasks         []*task.Task
	units         []*unit

	paused    atomic.Bool
	cancelled atomic.Bool
	settledAt atomic.Int64 // unix nanos, set once the session settles
	cancel    context.CancelFunc
	done      chan struct{}
}

// unit is the per-(country, adminLevel) task chain. Stages within a unit run
// strictly in order; units run in parallel under the semaphores.
type unit struct {
	url       config.UrlMetadata
	download  *task.Task
	simplify1 *task.Task
	simplify2 *task.Task
	tiles     []*task.Task
}

func (u *unit) all() []*task.Task {
	out := []*task.Task{u.download, u.simplify1, u.simplify2}
	return append(out, u.tiles...)
}

// StartBatchProcessing validates the request synchronously and, only if it
// is valid, creates a session and schedules its tasks. Invalid configuration
// is rejected as CONFIG_ERROR before anything is persisted.
func (o *Orchestrator) StartBatchProcessing(ctx context.Context, workingCopyID string, cfg config.ProcessingConfig, urls []config.UrlMetadata) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if err := config.ValidateURLs(urls); err != nil {
		return "", err
	}

	sessionID := uuid.NewString()
	session := &runningSession{
		id:            sessionID,
		workingCopyID: workingCopyID,
		done:          make(chan struct{}),
	}
	session.units = o.expandTasks(session, cfg, urls)
	for _, u := range session.units {
		session.tasks = append(session.tasks, u.all()...)
	}

	var estimatedSize int64
	for _, u := range urls {
		estimatedSize += u.EstimatedSize
	}
	record := &store.BatchSession{
		SessionID:     sessionID,
		WorkingCopyID: workingCopyID,
		NodeID:        o.nodeID,
		Status:        store.StatusRunning,
		EstimatedSize: estimatedSize,
	}
	if err := o.store.CreateBatchSession(ctx, record); err != nil {
		return "", fmt.Errorf("%s: persist batch session: %w", pipeline.CodeDatabaseError, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session.cancel = cancel

	o.mu.Lock()
	o.sessions[sessionID] = session
	o.mu.Unlock()

	metrics.ActiveSessions.Inc()
	logging.Info().
		Str("session_id", sessionID).
		Str("working_copy_id", workingCopyID).
		Int("units", len(session.units)).
		Int("tasks", len(session.tasks)).
		Msg("Batch processing started")

	go o.runSession(runCtx, session, cfg)
	return sessionID, nil
}

// expandTasks builds the per-unit task chains: one download per URL, one
// simplification and one topology task per unit, and one tile task per zoom
// level from MinTileZoom up to the configured maximum.
func (o *Orchestrator) expandTasks(session *runningSession, cfg config.ProcessingConfig, urls []config.UrlMetadata) []*unit {
	units := make([]*unit, 0, len(urls))

	for _, u := range urls {
		taskUnit := task.Unit{CountryCode: u.CountryCode, AdminLevel: u.AdminLevel}

		dl := task.New(uuid.NewString(), session.id, task.TypeDownload, taskUnit, task.DownloadConfig{
			URL:         u.URL,
			DataSource:  u.DataSource,
			CountryCode: u.CountryCode,
			AdminLevel:  u.AdminLevel,
		})
		s1 := task.New(uuid.NewString(), session.id, task.TypeSimplify1, taskUnit, o.simplifyConfigFor(cfg))
		s2 := task.New(uuid.NewString(), session.id, task.TypeSimplify2, taskUnit, task.TopologyConfig{
			Quantization: o.topo.Quantization,
			Presimplify:  o.topo.Presimplify,
		})

		entry := &unit{url: u, download: dl, simplify1: s1, simplify2: s2}
		for zoom := config.MinTileZoom; zoom <= cfg.MaxZoomLevel; zoom++ {
			tileUnit := task.Unit{CountryCode: u.CountryCode, AdminLevel: u.AdminLevel, Zoom: zoom}
			entry.tiles = append(entry.tiles, task.New(uuid.NewString(), session.id, task.TypeVectorTile, tileUnit, task.TileConfig{
				Zoom:   zoom,
				Extent: o.extent,
			}))
		}
		units = append(units, entry)
	}
	return units
}

// simplifyConfigFor layers the batch's feature filtering over the engine's
// simplification defaults. The area method drops features below the area
// threshold; the complexity method reads the threshold as a per-feature
// vertex cap instead.
func (o *Orchestrator) simplifyConfigFor(cfg config.ProcessingConfig) task.SimplifyConfig {
	sc := task.SimplifyConfig{
		Tolerance:        o.simplify.Tolerance,
		PreserveTopology: o.simplify.PreserveTopology,
		MinimumArea:      o.simplify.MinimumArea,
		MaxVertices:      o.simplify.MaxVertices,
	}
	if !cfg.EnableFeatureFiltering {
		return sc
	}

	switch cfg.FeatureFilterMethod {
	case "area":
		if cfg.FeatureAreaThreshold > sc.MinimumArea {
			sc.MinimumArea = cfg.FeatureAreaThreshold
		}
	case "complexity":
		if limit := int(cfg.FeatureAreaThreshold); limit > 0 && (sc.MaxVertices == 0 || limit < sc.MaxVertices) {
			sc.MaxVertices = limit
		}
	}
	return sc
}

// runSession drives every unit to a terminal state, then settles the
// session status.
func (o *Orchestrator) runSession(ctx context.Context, session *runningSession, cfg config.ProcessingConfig) {
	defer close(session.done)
	defer session.cancel()

	downloadSem := semaphore.NewWeighted(int64(cfg.ConcurrentDownloads))
	processSem := semaphore.NewWeighted(int64(cfg.ConcurrentProcesses))

	var wg sync.WaitGroup
	for _, u := range session.units {
		wg.Add(1)
		go func(u *unit) {
			defer wg.Done()
			o.runUnit(ctx, session, u, downloadSem, processSem)
		}(u)
	}
	wg.Wait()

	o.settleSession(session)
}

// runUnit executes one unit's chain in dependency order. A failed stage
// cancels the unit's remaining tasks; other units are unaffected.
func (o *Orchestrator) runUnit(ctx context.Context, session *runningSession, u *unit, downloadSem, processSem *semaphore.Weighted) {
	log := logging.With().
		Str("session_id", session.id).
		Str("unit", u.download.Unit.Key()).
		Logger()

	// Download stage.
	result := func() *pipeline.DownloadResult {
		if err := o.acquire(ctx, session, downloadSem, u.download); err != nil {
			return nil
		}
		defer downloadSem.Release(1)
		return o.workers.Download.ProcessDownload(ctx, u.download)
	}()
	o.touchSession(session.id)
	if result == nil || !result.Completed() {
		cancelRemaining(u.simplify1, u.simplify2)
		cancelRemaining(u.tiles...)
		return
	}

	// Feature simplification stage.
	u.simplify1.InputBufferID = result.BufferID
	s1 := func() *pipeline.SimplifyResult {
		if err := o.acquire(ctx, session, processSem, u.simplify1); err != nil {
			return nil
		}
		defer processSem.Release(1)
		return o.workers.Simplify.ProcessSimplification(ctx, u.simplify1)
	}()
	o.touchSession(session.id)
	if s1 == nil || !s1.Completed() {
		cancelRemaining(u.simplify2)
		cancelRemaining(u.tiles...)
		return
	}

	// Topology stage.
	u.simplify2.InputBufferID = s1.BufferID
	s2 := func() *pipeline.TopologyResult {
		if err := o.acquire(ctx, session, processSem, u.simplify2); err != nil {
			return nil
		}
		defer processSem.Release(1)
		return o.workers.Topology.ProcessTopologySimplification(ctx, u.simplify2)
	}()
	o.touchSession(session.id)
	if s2 == nil || !s2.Completed() {
		cancelRemaining(u.tiles...)
		return
	}

	// Tile stages. Coordinates are resolved now that the unit's geometry is
	// known: each zoom renders the tile containing the dataset's bbox center.
	centerLon, centerLat, ok := o.bufferCenter(s2.BufferID)
	for _, tileTask := range u.tiles {
		cfg, isTile := tileTask.Config.(task.TileConfig)
		if !isTile {
			continue
		}
		if ok {
			cfg.X, cfg.Y = tileForPoint(centerLon, centerLat, cfg.Zoom)
			tileTask.Config = cfg
		}
		tileTask.InputBufferID = s2.BufferID

		if err := o.acquire(ctx, session, processSem, tileTask); err != nil {
			return
		}
		tr := o.workers.Tile.GenerateVectorTile(ctx, tileTask)
		processSem.Release(1)
		o.touchSession(session.id)
		if !tr.Completed() && tr.Status == pipeline.StatusCancelled {
			cancelRemaining(u.tiles...)
			return
		}
	}

	log.Debug().Msg("Unit pipeline finished")
}

// acquire blocks on the session gate and the stage semaphore. A cancelled
// session marks the task cancelled and reports an error.
func (o *Orchestrator) acquire(ctx context.Context, session *runningSession, sem *semaphore.Weighted, t *task.Task) error {
	if err := session.gate(ctx); err != nil {
		cancelRemaining(t)
		return err
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		cancelRemaining(t)
		return err
	}
	// Re-check after a potentially long semaphore wait.
	if err := session.gate(ctx); err != nil {
		sem.Release(1)
		cancelRemaining(t)
		return err
	}
	return nil
}

// gate blocks while the session is paused and fails once it is cancelled.
func (s *runningSession) gate(ctx context.Context) error {
	for {
		if s.cancelled.Load() {
			return pipeline.ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.paused.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// cancelRemaining cancels every given task that has not reached a terminal
// stage.
func cancelRemaining(tasks ...*task.Task) {
	for _, t := range tasks {
		if t == nil || t.Stage().Terminal() {
			continue
		}
		// A lost race with a worker finishing the task is benign.
		_ = t.Transition(task.StageCancel)
	}
}

// settleSession derives the terminal session status from its tasks:
// cancelled wins, a batch where nothing succeeded is failed, anything else
// completed. Per-task failures stay visible in the aggregated status.
func (o *Orchestrator) settleSession(session *runningSession) {
	status := store.StatusCompleted
	if session.cancelled.Load() {
		status = store.StatusCancelled
	} else {
		succeeded := 0
		failed := 0
		for _, t := range session.tasks {
			switch t.Stage() {
			case task.StageSuccess:
				succeeded++
			case task.StageFailed:
				failed++
			}
		}
		if succeeded == 0 && failed > 0 {
			status = store.StatusFailed
		}
	}

	if err := o.store.UpdateSessionStatus(context.Background(), session.id, status); err != nil {
		logging.Error().Err(err).Str("session_id", session.id).Msg("Failed to persist terminal session status")
	}

	session.settledAt.Store(time.Now().UnixNano())
	metrics.ActiveSessions.Dec()
	metrics.SessionsTotal.WithLabelValues(string(status)).Inc()
	logging.Info().
		Str("session_id", session.id).
		Str("status", string(status)).
		Msg("Batch session settled")
}

func (o *Orchestrator) touchSession(id string) {
	if err := o.store.UpdateSessionActivity(context.Background(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Warn().Err(err).Str("session_id", id).Msg("Failed to update session activity")
	}
}

// bufferCenter decodes a topology buffer and returns its bbox center.
func (o *Orchestrator) bufferCenter(bufferID string) (lon, lat float64, ok bool) {
	v, err := o.buffers.Resolve(bufferID)
	if err != nil {
		return 0, 0, false
	}

	var features []*geojson.Feature
	switch input := v.(type) {
	case *topology.Topology:
		features = input.FeatureCollection().Features
	case *geojson.FeatureCollection:
		features = input.Features
	default:
		return 0, 0, false
	}
	if len(features) == 0 {
		return 0, 0, false
	}

	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.BBox()
		minLon = math.Min(minLon, b[0])
		minLat = math.Min(minLat, b[1])
		maxLon = math.Max(maxLon, b[2])
		maxLat = math.Max(maxLat, b[3])
	}
	if math.IsInf(minLon, 1) {
		return 0, 0, false
	}
	return (minLon + maxLon) / 2, (minLat + maxLat) / 2, true
}

// tileForPoint returns the slippy tile containing a geographic point.
func tileForPoint(lon, lat float64, zoom int) (x, y int) {
	const maxLat = 85.05112877980659
	if lat > maxLat {
		lat = maxLat
	}
	if lat < -maxLat {
		lat = -maxLat
	}

	n := math.Pow(2, float64(zoom))
	latRad := lat * math.Pi / 180

	x = int(math.Floor((lon + 180) / 360 * n))
	y = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))

	limit := int(n) - 1
	if x < 0 {
		x = 0
	}
	if x > limit {
		x = limit
	}
	if y < 0 {
		y = 0
	}
	if y > limit {
		y = limit
	}
	return x, y
}
