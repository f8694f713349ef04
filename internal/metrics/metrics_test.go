package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Verified(7)
	r.Rejected("not_found")
	r.Rejected("not_found")
	r.LookupTables(2, 1)
	r.Waves(3)
	r.Run("aggregator", "succeeded", 1500*time.Millisecond)

	if got := testutil.ToFloat64(r.accountsVerified); got != 7 {
		t.Fatalf("expected 7 verified, got %v", got)
	}
	if got := testutil.ToFloat64(r.accountsRejected.WithLabelValues("not_found")); got != 2 {
		t.Fatalf("expected 2 rejected, got %v", got)
	}
	if got := testutil.ToFloat64(r.lookupTables.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed table, got %v", got)
	}
	if got := testutil.ToFloat64(r.runDuration.WithLabelValues("aggregator")); got != 1.5 {
		t.Fatalf("unexpected run duration: %v", got)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Waves(4)
	if got := testutil.ToFloat64(b.verifyWaves); got != 0 {
		t.Fatalf("expected private registries, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.CloneEntries(13)
	path := filepath.Join(t.TempDir(), "textfile", "clonekit.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(raw), "clonekit_clone_entries 13") {
		t.Fatalf("unexpected textfile:\n%s", raw)
	}
}
