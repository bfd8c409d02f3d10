package ingest

import "testing"

func TestTrackerSingleFlight(t *testing.T) {
	tracker := NewTracker()

	if !tracker.Begin() {
		t.Fatal("first Begin should claim the slot")
	}
	if tracker.Begin() {
		t.Fatal("second Begin should fail while running")
	}

	tracker.Finish()
	if !tracker.Begin() {
		t.Fatal("Begin should succeed again after Finish")
	}
}

func TestTrackerCancelRequiresRunningJob(t *testing.T) {
	tracker := NewTracker()

	if tracker.RequestCancel() {
		t.Fatal("RequestCancel should fail when idle")
	}

	tracker.Begin()
	if !tracker.RequestCancel() {
		t.Fatal("RequestCancel should succeed while running")
	}
	if !tracker.Cancelled() {
		t.Fatal("Cancelled should report true after RequestCancel")
	}

	tracker.Finish()
	if tracker.Cancelled() {
		t.Fatal("Finish should clear the cancel flag")
	}
}

func TestTrackerBeginResetsState(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin()
	tracker.SetTotal(10)
	tracker.SetCurrent(4, "some scholarship")
	tracker.AddSaved()
	tracker.AddFailed("fetch failed")
	tracker.Finish()

	// Terminal state stays readable for progress consumers.
	snap := tracker.Snapshot()
	if snap.IsRunning {
		t.Error("IsRunning should be false after Finish")
	}
	if snap.Current != 4 || snap.SavedCount != 1 || snap.FailedCount != 1 {
		t.Errorf("Finish should preserve counters, got %+v", snap)
	}

	tracker.Begin()
	snap = tracker.Snapshot()
	if snap.Current != 0 || snap.Total != 0 || snap.SavedCount != 0 || snap.FailedCount != 0 || len(snap.Errors) != 0 {
		t.Errorf("Begin should reset counters, got %+v", snap)
	}
}

func TestTrackerSnapshotCopiesErrors(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin()
	tracker.AddError("first")

	snap := tracker.Snapshot()
	tracker.AddError("second")

	if len(snap.Errors) != 1 || snap.Errors[0] != "first" {
		t.Errorf("snapshot errors = %v, want the state at snapshot time", snap.Errors)
	}
	if got := tracker.Snapshot(); len(got.Errors) != 2 {
		t.Errorf("tracker errors = %v, want two entries", got.Errors)
	}
}

func TestTrackerSetTotalResetsCurrent(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin()
	tracker.SetCurrent(7, "item")
	tracker.SetTotal(20)

	snap := tracker.Snapshot()
	if snap.Total != 20 || snap.Current != 0 {
		t.Errorf("SetTotal should reset current, got total=%d current=%d", snap.Total, snap.Current)
	}
}
