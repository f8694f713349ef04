package ledger

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/clonekit/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "runs.db"), filepath.Join(dir, "runs.lock"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSaveGetList(t *testing.T) {
	store := openStore(t)
	now := time.Now().UTC()

	first := RunRecord{
		RunID:     NewRunID(),
		Trader:    "So11111111111111111111111111111111111111112",
		Source:    SourceAggregator,
		Status:    StatusSucceeded,
		Verified:  7,
		StartedAt: now.Add(-time.Minute).Format(time.RFC3339),
		Summary:   &model.ProvisionSummary{CloneEntries: 13},
	}
	second := RunRecord{
		RunID:     NewRunID(),
		Trader:    first.Trader,
		Source:    SourceCache,
		Status:    StatusFailed,
		Error:     "parse Anchor.toml",
		StartedAt: now.Format(time.RFC3339),
	}
	for _, run := range []RunRecord{first, second} {
		if err := store.Save(run); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := store.Get(first.RunID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Verified != 7 || got.Summary == nil || got.Summary.CloneEntries != 13 {
		t.Fatalf("unexpected run: %+v", got)
	}

	runs, err := store.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != second.RunID {
		t.Fatalf("expected newest run first, got %+v", runs)
	}

	first.Status = StatusFailed
	if err := store.Save(first); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	updated, _ := store.Get(first.RunID)
	if updated.Status != StatusFailed {
		t.Fatalf("expected updated status, got %s", updated.Status)
	}
}

func TestStoreGetMissingRun(t *testing.T) {
	store := openStore(t)
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := store.Save(RunRecord{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestStorePrune(t *testing.T) {
	store := openStore(t)
	old := RunRecord{RunID: "run_old", Status: StatusSucceeded, StartedAt: time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)}
	fresh := RunRecord{RunID: "run_fresh", Status: StatusSucceeded, StartedAt: time.Now().UTC().Format(time.RFC3339)}
	for _, run := range []RunRecord{old, fresh} {
		if err := store.Save(run); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	removed, err := store.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned run, got %d", removed)
	}
	if _, err := store.Get("run_old"); err == nil {
		t.Fatal("expected old run to be pruned")
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b || !strings.HasPrefix(a, "run_") {
		t.Fatalf("unexpected run ids: %s %s", a, b)
	}
}
