// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package task

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageWait, StageProcess, true},
		{StageWait, StageCancel, true},
		{StageWait, StageSuccess, false},
		{StageProcess, StageSuccess, true},
		{StageProcess, StageFailed, true},
		{StageProcess, StagePause, true},
		{StageProcess, StageCancel, true},
		{StagePause, StageProcess, true},
		{StagePause, StageCancel, true},
		{StagePause, StageSuccess, false},
		{StageSuccess, StageProcess, false},
		{StageFailed, StageProcess, false},
		{StageCancel, StageProcess, false},
		{StageCancel, StageWait, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStageTerminal(t *testing.T) {
	for _, s := range []Stage{StageSuccess, StageFailed, StageCancel} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Stage{StageWait, StageProcess, StagePause} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestTaskTransitionGuard(t *testing.T) {
	tk := New("t1", "s1", TypeDownload, Unit{CountryCode: "JP", AdminLevel: 1}, DownloadConfig{})

	if tk.Stage() != StageWait {
		t.Fatalf("new task stage = %s, want wait", tk.Stage())
	}

	if err := tk.Transition(StageSuccess); err == nil {
		t.Error("expected wait → success to be rejected")
	}
	if err := tk.Transition(StageProcess); err != nil {
		t.Errorf("wait → process: %v", err)
	}
	if err := tk.Transition(StageSuccess); err != nil {
		t.Errorf("process → success: %v", err)
	}
	if err := tk.Transition(StageProcess); err == nil {
		t.Error("expected terminal stage to reject further transitions")
	}
}

func TestTaskCancelIrreversible(t *testing.T) {
	tk := New("t1", "s1", TypeSimplify1, Unit{CountryCode: "DE", AdminLevel: 2}, SimplifyConfig{})

	if err := tk.Transition(StageCancel); err != nil {
		t.Fatalf("wait → cancel: %v", err)
	}
	for _, to := range []Stage{StageWait, StageProcess, StagePause, StageSuccess} {
		if err := tk.Transition(to); err == nil {
			t.Errorf("expected cancel → %s to be rejected", to)
		}
	}
}

func TestTaskPauseResume(t *testing.T) {
	tk := New("t1", "s1", TypeSimplify2, Unit{CountryCode: "FR", AdminLevel: 1}, TopologyConfig{})

	_ = tk.Transition(StageProcess)
	if tk.Interrupted() {
		t.Error("processing task should not read as interrupted")
	}

	_ = tk.Transition(StagePause)
	if !tk.Interrupted() {
		t.Error("paused task should read as interrupted at checkpoints")
	}

	if err := tk.Transition(StageProcess); err != nil {
		t.Errorf("pause → process (resume): %v", err)
	}
}

func TestTaskProgressClamped(t *testing.T) {
	tk := New("t1", "s1", TypeVectorTile, Unit{CountryCode: "JP", AdminLevel: 1, Zoom: 10}, TileConfig{})

	tk.SetProgress(150)
	if tk.Progress() != 100 {
		t.Errorf("progress = %f, want clamp to 100", tk.Progress())
	}
	tk.SetProgress(-5)
	if tk.Progress() != 0 {
		t.Errorf("progress = %f, want clamp to 0", tk.Progress())
	}
}

func TestTaskFail(t *testing.T) {
	tk := New("t1", "s1", TypeDownload, Unit{CountryCode: "JP", AdminLevel: 1}, DownloadConfig{})
	_ = tk.Transition(StageProcess)

	tk.Fail("NETWORK_ERROR", "fetch timed out")

	if tk.Stage() != StageFailed {
		t.Errorf("stage = %s, want failed", tk.Stage())
	}
	code, msg := tk.Error()
	if code != "NETWORK_ERROR" || msg != "fetch timed out" {
		t.Errorf("Error() = (%q, %q)", code, msg)
	}
}
