package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.UnitDone("prune")
	r.UnitDone("prune")
	r.UnitDone("score")
	r.UnitFailed("score")

	if got := testutil.ToFloat64(r.units.WithLabelValues("prune")); got != 2 {
		t.Errorf("prune units = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.units.WithLabelValues("score")); got != 1 {
		t.Errorf("score units = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.unitFailures.WithLabelValues("score")); got != 1 {
		t.Errorf("score failures = %v, want 1", got)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.UnitDone("prune")
	r.UnitFailed("prune")
	r.ObservePhase("prune", time.Second)
	r.ObserveCandidates(3)
	r.SetSubjects(1)
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("nil WriteTextfile() = %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.SetSubjects(3)
	r.ObserveCandidates(2)
	r.ObservePhase("score", 20*time.Millisecond)

	path := filepath.Join(t.TempDir(), "danny.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"danny_subjects 3", "danny_candidates_count 1", `danny_phase_duration_seconds_count{phase="score"} 1`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}
