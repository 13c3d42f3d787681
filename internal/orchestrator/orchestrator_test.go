// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/boundarytiles/internal/cache"
	"github.com/tomtom215/boundarytiles/internal/config"
	"github.com/tomtom215/boundarytiles/internal/mvt"
	"github.com/tomtom215/boundarytiles/internal/pipeline"
	"github.com/tomtom215/boundarytiles/internal/spatial"
	"github.com/tomtom215/boundarytiles/internal/store"
	"github.com/tomtom215/boundarytiles/internal/task"
)

const boundaryPayload = `{"type":"FeatureCollection","features":[
{"type":"Feature","id":"JP-1","properties":{"admin_level":1,"name":"Hokkaido"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,4],[0,0]]]}},
{"type":"Feature","id":"JP-2","properties":{"admin_level":2,"name":"Sapporo"},"geometry":{"type":"Polygon","coordinates":[[[4,0],[6,0],[6,2],[4,2],[4,0]]]}}
]}`

// stubFetcher serves a fixed payload, optionally slowly or with an error.
type stubFetcher struct {
	mu    sync.Mutex
	data  []byte
	err   error
	delay time.Duration
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	delay, data, err := f.delay, f.data, f.err
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func testEngineConfig() *config.Config {
	return &config.Config{
		Simplify: config.SimplifyConfig{Tolerance: 0.01, PreserveTopology: true},
		Topology: config.TopologyConfig{Quantization: 1e4},
		Tiles: config.TilesConfig{
			Extent: mvt.DefaultExtent,
			Layers: []mvt.LayerConfig{
				{Name: "admin_1", AdminLevel: 1, MinZoom: 0, MaxZoom: 18, Properties: []string{"name", "admin_level"}},
				{Name: "admin_2", AdminLevel: 2, MinZoom: 0, MaxZoom: 18, Properties: []string{"name", "admin_level"}},
			},
		},
	}
}

func testProcessing() config.ProcessingConfig {
	return config.ProcessingConfig{
		ConcurrentDownloads: 2,
		ConcurrentProcesses: 2,
		MaxZoomLevel:        8,
		FeatureFilterMethod: "none",
	}
}

func testURLs() []config.UrlMetadata {
	return []config.UrlMetadata{
		{URL: "https://example.com/jp1.json", DataSource: "geoBoundaries", CountryCode: "JP", AdminLevel: 1,
			Continent: "Asia", EstimatedSize: 1 << 20},
		{URL: "https://example.com/jp2.json", DataSource: "geoBoundaries", CountryCode: "JP", AdminLevel: 2,
			Continent: "Asia", EstimatedSize: 2 << 20},
	}
}

func newTestOrchestrator(t *testing.T, fetcher pipeline.Fetcher) (*Orchestrator, *store.Store) {
	t.Helper()

	st, err := store.Open("", true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	buffers := pipeline.NewBufferStore()
	byteCache := cache.NewByteCache(cache.DefaultCapacity)
	grid := spatial.NewGrid(100)

	downloadCfg := config.DownloadConfig{
		RetryAttempts:      1,
		RetryDelay:         time.Millisecond,
		BreakerMaxFailures: 10,
	}
	cfg := testEngineConfig()
	workers := Workers{
		Download: pipeline.NewDownloadWorker(downloadCfg, fetcher, byteCache, grid, buffers),
		Simplify: pipeline.NewSimplifyWorker(buffers),
		Topology: pipeline.NewTopologyWorker(buffers),
		Tile:     pipeline.NewTileWorker(buffers, cfg.Tiles.Layers),
	}
	return New("node-1", st, buffers, workers, cfg), st
}

func TestStartBatchProcessing_RejectsInvalidConfig(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload)})

	bad := testProcessing()
	bad.ConcurrentDownloads = 20

	_, err := o.StartBatchProcessing(context.Background(), "wc-1", bad, testURLs())
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	// Validation failed synchronously, so nothing was persisted.
	sessions, err := st.ListBatchSessions(context.Background())
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("invalid batch persisted %d sessions", len(sessions))
	}
}

func TestStartBatchProcessing_RejectsEmptyURLs(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload)})

	_, err := o.StartBatchProcessing(context.Background(), "wc-1", testProcessing(), nil)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty urls, got %v", err)
	}
}

func TestStartBatchProcessing_EndToEnd(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload)})
	ctx := context.Background()

	sessionID, err := o.StartBatchProcessing(ctx, "wc-1", testProcessing(), testURLs())
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	if err := o.Wait(ctx, sessionID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	status, err := o.GetBatchStatus(sessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	// Two units, each download + simplify + topology + one tile at zoom 8.
	if status.TotalTasks != 8 {
		t.Errorf("total tasks = %d, want 8", status.TotalTasks)
	}
	if status.Succeeded != 8 {
		t.Errorf("succeeded = %d of %d, errors: %+v", status.Succeeded, status.TotalTasks, status.Errors)
	}
	if status.Progress != 100 {
		t.Errorf("progress = %f, want 100", status.Progress)
	}

	record, err := st.GetBatchSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if record.Status != store.StatusCompleted {
		t.Errorf("persisted status = %s, want completed", record.Status)
	}
	if record.EstimatedSize != 3<<20 {
		t.Errorf("session estimated size = %d, want sum of url estimates %d", record.EstimatedSize, 3<<20)
	}

	// A completed session is not a resumption candidate.
	pending, err := o.FindPendingBatchSessions(ctx, "node-1")
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("completed session listed as pending")
	}
}

func TestStartBatchProcessing_DownloadFailureCancelsUnit(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubFetcher{err: errors.New("connection refused")})
	ctx := context.Background()

	sessionID, err := o.StartBatchProcessing(ctx, "wc-1", testProcessing(), testURLs()[:1])
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	if err := o.Wait(ctx, sessionID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	status, err := o.GetBatchStatus(sessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Failed != 1 {
		t.Errorf("failed = %d, want 1", status.Failed)
	}
	if status.Cancelled != 3 {
		t.Errorf("cancelled = %d, want 3 (downstream of the failed download)", status.Cancelled)
	}
	if len(status.Errors) != 1 || status.Errors[0].Code != pipeline.CodeNetworkError {
		t.Errorf("errors = %+v, want one NETWORK_ERROR", status.Errors)
	}

	record, err := st.GetBatchSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if record.Status != store.StatusFailed {
		t.Errorf("persisted status = %s, want failed (no task succeeded)", record.Status)
	}
}

func TestCancelBatchProcessing(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload), delay: 300 * time.Millisecond})
	ctx := context.Background()

	sessionID, err := o.StartBatchProcessing(ctx, "wc-1", testProcessing(), testURLs())
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := o.CancelBatchProcessing(ctx, sessionID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Cancellation is idempotent.
	if err := o.CancelBatchProcessing(ctx, sessionID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	if err := o.Wait(ctx, sessionID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	status, err := o.GetBatchStatus(sessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Succeeded != 0 {
		t.Errorf("succeeded = %d after cancel, want 0", status.Succeeded)
	}

	record, err := st.GetBatchSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if record.Status != store.StatusCancelled {
		t.Errorf("persisted status = %s, want cancelled", record.Status)
	}

	// A cancelled session cannot be paused or resumed.
	if err := o.PauseBatchProcessing(ctx, sessionID); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("pause after cancel: expected ErrSessionTerminal, got %v", err)
	}
	if err := o.ResumeBatchProcessing(ctx, sessionID); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("resume after cancel: expected ErrSessionTerminal, got %v", err)
	}
}

func TestPauseAndResumeBatchProcessing(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload), delay: 100 * time.Millisecond})
	ctx := context.Background()

	sessionID, err := o.StartBatchProcessing(ctx, "wc-1", testProcessing(), testURLs()[:1])
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := o.PauseBatchProcessing(ctx, sessionID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	record, err := st.GetBatchSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if record.Status != store.StatusPaused {
		t.Errorf("persisted status = %s, want paused", record.Status)
	}

	// A paused session is a resumption candidate for its node.
	pending, err := o.FindPendingBatchSessions(ctx, "node-1")
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SessionID != sessionID {
		t.Errorf("pending sessions = %+v, want the paused one", pending)
	}

	if err := o.ResumeBatchProcessing(ctx, sessionID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := o.Wait(ctx, sessionID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	status, err := o.GetBatchStatus(sessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Succeeded != status.TotalTasks {
		t.Errorf("succeeded = %d of %d after resume, errors: %+v",
			status.Succeeded, status.TotalTasks, status.Errors)
	}

	record, err = st.GetBatchSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if record.Status != store.StatusCompleted {
		t.Errorf("persisted status = %s, want completed", record.Status)
	}
}

func TestGetBatchStatus_UnknownSession(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload)})

	if _, err := o.GetBatchStatus("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestExpandTasks(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload)})

	cfg := testProcessing()
	cfg.MaxZoomLevel = 10
	session := &runningSession{id: "sess-1", done: make(chan struct{})}

	units := o.expandTasks(session, cfg, testURLs()[:1])
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}

	u := units[0]
	if len(u.tiles) != 3 {
		t.Errorf("tile tasks = %d, want 3 (zooms 8..10)", len(u.tiles))
	}
	all := u.all()
	if len(all) != 6 {
		t.Errorf("unit tasks = %d, want 6", len(all))
	}
	for _, tk := range all {
		if tk.SessionID != "sess-1" {
			t.Errorf("task %s carries session %q", tk.ID, tk.SessionID)
		}
		if tk.Stage() != task.StageWait {
			t.Errorf("task %s starts in stage %s, want wait", tk.ID, tk.Stage())
		}
	}
	if u.download.Type != task.TypeDownload || u.simplify1.Type != task.TypeSimplify1 ||
		u.simplify2.Type != task.TypeSimplify2 || u.tiles[0].Type != task.TypeVectorTile {
		t.Error("task types not in pipeline order")
	}
}

func TestExpandTasks_FeatureFiltering(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubFetcher{data: []byte(boundaryPayload)})
	session := &runningSession{id: "sess-1", done: make(chan struct{})}

	simplifyCfg := func(cfg config.ProcessingConfig) task.SimplifyConfig {
		units := o.expandTasks(session, cfg, testURLs()[:1])
		sc, ok := units[0].simplify1.Config.(task.SimplifyConfig)
		if !ok {
			t.Fatalf("simplify task carries %T", units[0].simplify1.Config)
		}
		return sc
	}

	off := testProcessing()
	if sc := simplifyCfg(off); sc.MinimumArea != 0 || sc.MaxVertices != 0 {
		t.Errorf("filtering disabled, got MinimumArea=%f MaxVertices=%d", sc.MinimumArea, sc.MaxVertices)
	}

	area := testProcessing()
	area.EnableFeatureFiltering = true
	area.FeatureFilterMethod = "area"
	area.FeatureAreaThreshold = 0.5
	if sc := simplifyCfg(area); sc.MinimumArea != 0.5 {
		t.Errorf("area filtering: MinimumArea = %f, want 0.5", sc.MinimumArea)
	}

	complexity := testProcessing()
	complexity.EnableFeatureFiltering = true
	complexity.FeatureFilterMethod = "complexity"
	complexity.FeatureAreaThreshold = 500
	if sc := simplifyCfg(complexity); sc.MaxVertices != 500 {
		t.Errorf("complexity filtering: MaxVertices = %d, want 500", sc.MaxVertices)
	}
}

func TestTileForPoint(t *testing.T) {
	cases := []struct {
		name     string
		lon, lat float64
		zoom     int
		x, y     int
	}{
		{"origin z8", 0, 0, 8, 128, 128},
		{"tokyo z8", 139.69, 35.68, 8, 227, 100},
		{"north pole clamped", 0, 89.9, 8, 128, 0},
		{"antimeridian z0", 180, -89.9, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tileForPoint(tc.lon, tc.lat, tc.zoom)
			if x != tc.x || y != tc.y {
				t.Errorf("tileForPoint(%f, %f, %d) = (%d, %d), want (%d, %d)",
					tc.lon, tc.lat, tc.zoom, x, y, tc.x, tc.y)
			}
		})
	}
}
