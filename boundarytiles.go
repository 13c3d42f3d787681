// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package boundarytiles is the engine facade: it wires configuration,
// storage, caches, the stage workers, the batch orchestrator and the cleanup
// service under one supervision tree and exposes typed entry points for
// embedding hosts.
package boundarytiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/boundarytiles/internal/cache"
	"github.com/tomtom215/boundarytiles/internal/cleanup"
	"github.com/tomtom215/boundarytiles/internal/config"
	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/orchestrator"
	"github.com/tomtom215/boundarytiles/internal/pipeline"
	"github.com/tomtom215/boundarytiles/internal/spatial"
	"github.com/tomtom215/boundarytiles/internal/store"
	"github.com/tomtom215/boundarytiles/internal/supervisor"
)

// DefaultGridCellKm is the spatial index cell size used by the engine.
const DefaultGridCellKm = 100

// ErrAlreadyStarted is returned by Start when the engine is running.
var ErrAlreadyStarted = errors.New("engine already started")

// ErrNotStarted is returned by Stop when the engine never started.
var ErrNotStarted = errors.New("engine not started")

// Engine is the assembled boundary processing pipeline.
type Engine struct {
	cfg          *config.Config
	nodeID       string
	store        *store.Store
	byteCache    *cache.ByteCache
	grid         *spatial.Grid
	buffers      *pipeline.BufferStore
	orchestrator *orchestrator.Orchestrator
	cleanup      *cleanup.Service
	tree         *supervisor.Tree

	mu     sync.Mutex
	cancel context.CancelFunc
	done   <-chan error
}

// New assembles an engine from the given configuration. A nil configuration
// is loaded from the default file and environment layers.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		loaded, err := config.LoadWithKoanf()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	nodeID := cfg.NodeID
	if nodeID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			nodeID = host
		} else {
			nodeID = uuid.NewString()
		}
	}

	st, err := store.Open(cfg.Store.Path, cfg.Store.InMemory)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	buffers := pipeline.NewBufferStore()
	byteCache := cache.NewByteCache(cfg.Cache.Capacity)
	grid := spatial.NewGrid(DefaultGridCellKm)
	fetcher := pipeline.NewHTTPFetcher(cfg.Download.Timeout, cfg.Processing.CORSProxyBaseURL)

	workers := orchestrator.Workers{
		Download: pipeline.NewDownloadWorker(cfg.Download, fetcher, byteCache, grid, buffers),
		Simplify: pipeline.NewSimplifyWorker(buffers),
		Topology: pipeline.NewTopologyWorker(buffers),
		Tile:     pipeline.NewTileWorker(buffers, cfg.Tiles.Layers),
	}
	orc := orchestrator.New(nodeID, st, buffers, workers, cfg)
	cleaner := cleanup.New(st, cfg.Cleanup)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipelineService(orchestrator.NewRunner(orc))
	tree.AddMaintenanceService(cleaner)

	return &Engine{
		cfg:          cfg,
		nodeID:       nodeID,
		store:        st,
		byteCache:    byteCache,
		grid:         grid,
		buffers:      buffers,
		orchestrator: orc,
		cleanup:      cleaner,
		tree:         tree,
	}, nil
}

// NodeID returns the node identity batch sessions are pinned to.
func (e *Engine) NodeID() string {
	return e.nodeID
}

// Start launches the supervision tree in the background. The given context
// scopes the engine's lifetime in addition to Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = e.tree.ServeBackground(runCtx)

	logging.Info().Str("node_id", e.nodeID).Msg("Engine started")
	return nil
}

// Stop shuts the supervision tree down, waits for it to finish and closes
// the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	err := <-done
	if closeErr := e.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logging.Info().Str("node_id", e.nodeID).Msg("Engine stopped")
	return err
}

// StartBatchProcessing validates the request and schedules a batch session.
func (e *Engine) StartBatchProcessing(ctx context.Context, workingCopyID string, processing config.ProcessingConfig, urls []config.UrlMetadata) (string, error) {
	return e.orchestrator.StartBatchProcessing(ctx, workingCopyID, processing, urls)
}

// PauseBatchProcessing suspends a running batch session.
func (e *Engine) PauseBatchProcessing(ctx context.Context, sessionID string) error {
	return e.orchestrator.PauseBatchProcessing(ctx, sessionID)
}

// ResumeBatchProcessing resumes a paused batch session.
func (e *Engine) ResumeBatchProcessing(ctx context.Context, sessionID string) error {
	return e.orchestrator.ResumeBatchProcessing(ctx, sessionID)
}

// CancelBatchProcessing cancels a batch session. Terminal and idempotent.
func (e *Engine) CancelBatchProcessing(ctx context.Context, sessionID string) error {
	return e.orchestrator.CancelBatchProcessing(ctx, sessionID)
}

// WaitForBatch blocks until the session's scheduler has finished or the
// context is cancelled.
func (e *Engine) WaitForBatch(ctx context.Context, sessionID string) error {
	return e.orchestrator.Wait(ctx, sessionID)
}

// GetBatchStatus aggregates the live task state of a session.
func (e *Engine) GetBatchStatus(sessionID string) (*orchestrator.BatchStatus, error) {
	return e.orchestrator.GetBatchStatus(sessionID)
}

// FindPendingBatchSessions lists this node's paused and running sessions.
func (e *Engine) FindPendingBatchSessions(ctx context.Context) ([]*store.BatchSession, error) {
	return e.orchestrator.FindPendingBatchSessions(ctx, e.nodeID)
}

// CreateWorkingCopy persists a new working copy draft.
func (e *Engine) CreateWorkingCopy(ctx context.Context, wc *store.ShapeWorkingCopy) error {
	return e.store.CreateWorkingCopy(ctx, wc)
}

// GetWorkingCopy retrieves a working copy by id.
func (e *Engine) GetWorkingCopy(ctx context.Context, id string) (*store.ShapeWorkingCopy, error) {
	return e.store.GetWorkingCopy(ctx, id)
}

// UpdateWorkingCopy overwrites a working copy, bumping its version.
func (e *Engine) UpdateWorkingCopy(ctx context.Context, wc *store.ShapeWorkingCopy) error {
	return e.store.UpdateWorkingCopy(ctx, wc)
}

// DeleteWorkingCopy removes a working copy.
func (e *Engine) DeleteWorkingCopy(ctx context.Context, id string) error {
	return e.store.DeleteWorkingCopy(ctx, id)
}

// ListWorkingCopies returns all stored working copies.
func (e *Engine) ListWorkingCopies(ctx context.Context) ([]*store.ShapeWorkingCopy, error) {
	return e.store.ListWorkingCopies(ctx)
}

// CleanupStats reports stored record counts and expiry state.
func (e *Engine) CleanupStats(ctx context.Context) (*cleanup.Stats, error) {
	return e.cleanup.Stats(ctx)
}

// PerformCleanup removes records idle past the TTL.
func (e *Engine) PerformCleanup(ctx context.Context) (*cleanup.Result, error) {
	return e.cleanup.PerformCleanup(ctx)
}

// ForceCleanup removes all working copies and sessions regardless of age.
func (e *Engine) ForceCleanup(ctx context.Context) (*cleanup.Result, error) {
	return e.cleanup.ForceCleanup(ctx)
}
