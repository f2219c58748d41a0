package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestIdeaRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Snapshot{
		Title:       "Slow API Response Times",
		Description: "Dashboard endpoints time out under load.",
		Category:    "pain-point",
		Status:      "submitted",
		Priority:    "high",
		Impact:      "Support tickets spike every Monday morning.",
		Tags:        []string{"performance", "api"},
	}

	if err := svc.EnsureIdeaRepo("idea_1", initial, "Priya Sharma"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "idea_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Re-running for an existing repo must be a no-op.
	if err := svc.EnsureIdeaRepo("idea_1", initial, "Priya Sharma"); err != nil {
		t.Fatalf("EnsureIdeaRepo() second call error = %v", err)
	}

	updated := initial
	updated.Status = "in-review"
	commit, err := svc.CommitSnapshot("idea_1", updated, "Priya Sharma", "Move to in-review")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("idea_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}

	changed, err := svc.GetSnapshotByHash("idea_1", commit.Hash)
	if err != nil {
		t.Fatalf("GetSnapshotByHash() error = %v", err)
	}
	if changed.Status != "in-review" {
		t.Fatalf("unexpected snapshot: %+v", changed)
	}
}

func TestSnapshotRoundTripPreservesTags(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Snapshot{
		Title:       "Team idea pool",
		Description: "Collect quarterly hack week pitches.",
		Category:    "idea",
		Status:      "submitted",
		Priority:    "medium",
		Tags:        []string{"hack-week", "culture", "q3"},
	}

	if err := svc.EnsureIdeaRepo("idea_2", initial, "Marco Ruiz"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}

	updated := initial
	updated.Description = "Collect quarterly hack week pitches. (edited)"
	if _, err := svc.CommitSnapshot("idea_2", updated, "Marco Ruiz", "Edit description"); err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	got, head, err := svc.GetHeadSnapshot("idea_2")
	if err != nil {
		t.Fatalf("GetHeadSnapshot() error = %v", err)
	}
	if head.Author != "Marco Ruiz" {
		t.Fatalf("unexpected head author: %s", head.Author)
	}
	if strings.Join(got.Tags, ",") != strings.Join(updated.Tags, ",") {
		t.Fatalf("tags mismatch after round-trip: want %v, got %v", updated.Tags, got.Tags)
	}
}

func TestDiffFields(t *testing.T) {
	from := Snapshot{Title: "A", Status: "submitted", Tags: []string{"x"}}
	to := Snapshot{Title: "A", Status: "in-review", Tags: []string{"x", "y"}}

	diff := DiffFields(from, to)
	if len(diff) != 2 {
		t.Fatalf("expected 2 changed fields, got %d: %v", len(diff), diff)
	}
	if diff[0]["field"] != "status" || diff[1]["field"] != "tags" {
		t.Fatalf("unexpected diff ordering: %v", diff)
	}
	if !HasChanges(from, to) {
		t.Fatal("expected HasChanges to report true")
	}
	if HasChanges(from, from) {
		t.Fatal("expected HasChanges to report false for identical snapshots")
	}
}

func TestConcurrentCommitSnapshot(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := Snapshot{
		Title:       "Concurrency fixture",
		Description: "Base",
		Category:    "idea",
		Status:      "submitted",
		Priority:    "low",
	}

	if err := svc.EnsureIdeaRepo("idea_3", initial, "Priya Sharma"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := initial
			next.Description = fmt.Sprintf("revision-%02d", idx)
			if _, err := svc.CommitSnapshot("idea_3", next, "Priya Sharma", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitSnapshot() concurrent error = %v", err)
		}
	}

	history, err := svc.History("idea_3", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits in history, got %d", writers+1, len(history))
	}

	head, _, err := svc.GetHeadSnapshot("idea_3")
	if err != nil {
		t.Fatalf("GetHeadSnapshot() error = %v", err)
	}
	if !strings.HasPrefix(head.Description, "revision-") {
		t.Fatalf("unexpected head snapshot after concurrent commits: %+v", head)
	}
}
