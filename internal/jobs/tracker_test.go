package jobs

import "testing"

// TestTrackerBatchLifecycle verifies counters across a two-file batch.
func TestTrackerBatchLifecycle(t *testing.T) {
	tracker := NewTracker()
	tracker.BatchStarted("batch-1", 2)

	state := tracker.Current()
	if !state.Active || state.Total != 2 {
		t.Fatalf("state after start = %+v", state)
	}

	tracker.FileStarted("batch-1", "a.png")
	if got := tracker.Current().CurrentFile; got != "a.png" {
		t.Fatalf("current file = %q, want a.png", got)
	}

	tracker.FileCompleted("batch-1")
	tracker.FileStarted("batch-1", "b.jpg")
	tracker.FileFailed("batch-1")
	tracker.BatchFinished("batch-1")

	state = tracker.Current()
	if state.Active {
		t.Fatal("batch should be inactive")
	}
	if state.Completed != 1 || state.Failed != 1 {
		t.Fatalf("counts = %+v", state)
	}
	if state.CurrentFile != "" {
		t.Fatalf("current file = %q, want empty", state.CurrentFile)
	}
}

// TestTrackerEmptyBatchNeverActive verifies a zero-file batch stays idle.
func TestTrackerEmptyBatchNeverActive(t *testing.T) {
	tracker := NewTracker()
	tracker.BatchStarted("batch-1", 0)
	if tracker.Current().Active {
		t.Fatal("empty batch should not be active")
	}
}

// TestTrackerNewerBatchWins verifies overlapping batches overwrite the
// snapshot instead of blocking each other.
func TestTrackerNewerBatchWins(t *testing.T) {
	tracker := NewTracker()
	tracker.BatchStarted("batch-1", 3)
	tracker.BatchStarted("batch-2", 1)

	// Updates for the superseded batch are ignored.
	tracker.FileCompleted("batch-1")

	state := tracker.Current()
	if state.ID != "batch-2" || state.Total != 1 || state.Completed != 0 {
		t.Fatalf("state = %+v", state)
	}
}
