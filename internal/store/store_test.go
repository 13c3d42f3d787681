// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/boundarytiles/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), false)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func testWorkingCopy(id string) *ShapeWorkingCopy {
	return &ShapeWorkingCopy{
		ID:                id,
		NodeID:            "node-a",
		SelectedCountries: []string{"JP", "DE"},
		AdminLevels:       []int{1, 2},
		Processing: config.ProcessingConfig{
			ConcurrentDownloads: 4,
			ConcurrentProcesses: 4,
			MaxZoomLevel:        12,
			FeatureFilterMethod: "none",
		},
		URLMetadata: []config.UrlMetadata{{
			URL:         "https://example.com/jp/1.geojson",
			DataSource:  "geoBoundaries",
			CountryCode: "JP",
			AdminLevel:  1,
		}},
		IsDraft: true,
	}
}

func TestWorkingCopyCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wc := testWorkingCopy("wc-1")
	if err := s.CreateWorkingCopy(ctx, wc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if wc.Version != 1 {
		t.Errorf("new working copy version = %d, want 1", wc.Version)
	}
	if wc.UpdatedAt.IsZero() {
		t.Error("create did not stamp UpdatedAt")
	}

	got, err := s.GetWorkingCopy(ctx, "wc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.NodeID != "node-a" || len(got.SelectedCountries) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Processing.MaxZoomLevel != 12 {
		t.Errorf("processing config not persisted: %+v", got.Processing)
	}

	got.IsDraft = false
	before := got.UpdatedAt
	if err := s.UpdateWorkingCopy(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version after update = %d, want 2", got.Version)
	}
	if !got.UpdatedAt.After(before) && !got.UpdatedAt.Equal(before) {
		t.Error("update moved UpdatedAt backwards")
	}

	if err := s.DeleteWorkingCopy(ctx, "wc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetWorkingCopy(ctx, "wc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: expected ErrNotFound, got %v", err)
	}

	// Deleting again is a no-op.
	if err := s.DeleteWorkingCopy(ctx, "wc-1"); err != nil {
		t.Errorf("double delete: %v", err)
	}
}

func TestUpdateWorkingCopy_Missing(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpdateWorkingCopy(context.Background(), testWorkingCopy("ghost")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListWorkingCopies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"wc-1", "wc-2", "wc-3"} {
		if err := s.CreateWorkingCopy(ctx, testWorkingCopy(id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	all, err := s.ListWorkingCopies(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("listed %d working copies, want 3", len(all))
	}
}

func TestBatchSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session := &BatchSession{
		SessionID:     "sess-1",
		WorkingCopyID: "wc-1",
		NodeID:        "node-a",
		Status:        StatusPending,
		EstimatedSize: 1 << 20,
	}
	if err := s.CreateBatchSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.CreatedAt.IsZero() || session.LastActivityAt.IsZero() {
		t.Error("create did not stamp timestamps")
	}

	if err := s.UpdateSessionStatus(ctx, "sess-1", StatusRunning); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := s.GetBatchSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}

	activityBefore := got.LastActivityAt
	if err := s.UpdateSessionActivity(ctx, "sess-1"); err != nil {
		t.Fatalf("update activity: %v", err)
	}
	got, err = s.GetBatchSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get after touch: %v", err)
	}
	if got.LastActivityAt.Before(activityBefore) {
		t.Error("activity timestamp moved backwards")
	}

	if err := s.DeleteBatchSession(ctx, "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetBatchSession(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSessionActivity_Missing(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpdateSessionActivity(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionsByNode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := []*BatchSession{
		{SessionID: "a-running", NodeID: "node-a", Status: StatusRunning},
		{SessionID: "a-paused", NodeID: "node-a", Status: StatusPaused},
		{SessionID: "a-done", NodeID: "node-a", Status: StatusCompleted},
		{SessionID: "a-cancelled", NodeID: "node-a", Status: StatusCancelled},
		{SessionID: "b-running", NodeID: "node-b", Status: StatusRunning},
	}
	for _, sess := range seed {
		if err := s.CreateBatchSession(ctx, sess); err != nil {
			t.Fatalf("create %s: %v", sess.SessionID, err)
		}
	}

	got, err := s.SessionsByNode(ctx, "node-a")
	if err != nil {
		t.Fatalf("sessions by node: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sessions, want 2 (running + paused)", len(got))
	}
	for _, sess := range got {
		if sess.NodeID != "node-a" {
			t.Errorf("session %s belongs to %s", sess.SessionID, sess.NodeID)
		}
		if sess.Status != StatusRunning && sess.Status != StatusPaused {
			t.Errorf("session %s has status %s", sess.SessionID, sess.Status)
		}
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	terminal := []SessionStatus{StatusCompleted, StatusCancelled, StatusFailed}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
	for _, st := range []SessionStatus{StatusPending, StatusRunning, StatusPaused} {
		if st.Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
	}
}

func TestInMemoryStore(t *testing.T) {
	s, err := Open("", true)
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.CreateWorkingCopy(ctx, testWorkingCopy("wc-mem")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.GetWorkingCopy(ctx, "wc-mem"); err != nil {
		t.Errorf("get: %v", err)
	}
}
