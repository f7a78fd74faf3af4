package extractor

import (
	"fmt"
	"testing"
	"time"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	started := tr.Start("col_1", "https://example.com/a")
	if started.Status != ExtractionInProgress {
		t.Errorf("status = %s, want in_progress", started.Status)
	}

	tr.Complete("col_1", "https://example.com/a", "doc-1")
	got := tr.Get("col_1", "https://example.com/a")
	if got == nil {
		t.Fatal("progress lost after completion")
	}
	if got.Status != ExtractionCompleted || got.DocumentID != "doc-1" {
		t.Errorf("got %+v", got)
	}
}

func TestTrackerFail(t *testing.T) {
	tr := NewTracker()
	tr.Start("col_1", "upload.md")
	tr.Fail("col_1", "upload.md", fmt.Errorf("fetch timed out"))

	got := tr.Get("col_1", "upload.md")
	if got == nil || got.Status != ExtractionFailed {
		t.Fatalf("got %+v, want failed", got)
	}
	if got.Error != "fetch timed out" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestTrackerGetReturnsCopies(t *testing.T) {
	tr := NewTracker()
	tr.Start("col_1", "a")

	first := tr.Get("col_1", "a")
	first.Status = ExtractionFailed

	second := tr.Get("col_1", "a")
	if second.Status != ExtractionInProgress {
		t.Error("mutation of a returned copy leaked into the tracker")
	}
}

func TestTrackerGetUntracked(t *testing.T) {
	tr := NewTracker()
	if got := tr.Get("col_1", "nothing"); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestTrackerUpdateUntrackedIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.Complete("col_1", "nothing", "doc-1")
	tr.Fail("col_1", "nothing", fmt.Errorf("boom"))
	if got := tr.Get("col_1", "nothing"); got != nil {
		t.Errorf("update created an entry: %+v", got)
	}
}

func TestTrackerListScopedToCollection(t *testing.T) {
	tr := NewTracker()
	tr.Start("col_1", "a")
	tr.Start("col_1", "b")
	tr.Start("col_2", "c")

	if got := len(tr.List("col_1")); got != 2 {
		t.Errorf("listed %d entries, want 2", got)
	}
	if got := len(tr.List("col_3")); got != 0 {
		t.Errorf("listed %d entries for unknown collection, want 0", got)
	}
}

func TestTrackerRestartResetsEntry(t *testing.T) {
	tr := NewTracker()
	tr.Start("col_1", "a")
	tr.Fail("col_1", "a", fmt.Errorf("boom"))

	tr.Start("col_1", "a")
	got := tr.Get("col_1", "a")
	if got.Status != ExtractionInProgress || got.Error != "" {
		t.Errorf("restart did not reset entry: %+v", got)
	}
}

func TestTrackerCleanup(t *testing.T) {
	tr := NewTracker()
	tr.Start("col_1", "done")
	tr.Complete("col_1", "done", "doc-1")
	tr.Start("col_1", "running")

	// Nothing is old enough yet.
	if removed := tr.Cleanup(time.Hour); removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}

	// With a zero max age every terminal entry is stale; in-progress entries
	// are kept regardless of age.
	if removed := tr.Cleanup(0); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if tr.Get("col_1", "done") != nil {
		t.Error("terminal entry survived cleanup")
	}
	if tr.Get("col_1", "running") == nil {
		t.Error("in-progress entry removed by cleanup")
	}
}
