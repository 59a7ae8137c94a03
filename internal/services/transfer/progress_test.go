package transfer

import (
	"errors"
	"testing"
	"time"

	"github.com/telefile/telefile/internal/models"
)

func collectSink(out *[]models.ProgressSnapshot) Sink {
	return func(snap models.ProgressSnapshot) error {
		*out = append(*out, snap)
		return nil
	}
}

func TestAggregatorThrottlesSamePhase(t *testing.T) {
	var got []models.ProgressSnapshot
	agg := NewAggregator(collectSink(&got), time.Hour)

	for i := 0; i < 10; i++ {
		agg.Emit(models.ProgressSnapshot{Phase: models.PhaseDownloading, BytesDone: int64(i)})
	}

	// First emit is a phase transition, second consumes the limiter token,
	// the rest fall inside the interval.
	if len(got) != 2 {
		t.Fatalf("Expected 2 forwarded snapshots, got %d", len(got))
	}
}

func TestAggregatorAlwaysForwardsPhaseTransitions(t *testing.T) {
	var got []models.ProgressSnapshot
	agg := NewAggregator(collectSink(&got), time.Hour)

	phases := []models.Phase{
		models.PhaseResolving,
		models.PhaseDownloading,
		models.PhaseUploading,
		models.PhaseFinished,
	}
	for _, p := range phases {
		agg.Emit(models.ProgressSnapshot{Phase: p})
	}

	if len(got) != len(phases) {
		t.Fatalf("Expected %d forwarded snapshots, got %d", len(phases), len(got))
	}
	for i, p := range phases {
		if got[i].Phase != p {
			t.Errorf("Snapshot %d has phase %s, expected %s", i, got[i].Phase, p)
		}
	}
}

func TestAggregatorSurvivesFailingSink(t *testing.T) {
	calls := 0
	agg := NewAggregator(func(models.ProgressSnapshot) error {
		calls++
		return errors.New("message edit failed")
	}, time.Millisecond)

	agg.Emit(models.ProgressSnapshot{Phase: models.PhaseDownloading})
	agg.Emit(models.ProgressSnapshot{Phase: models.PhaseUploading})

	if calls != 2 {
		t.Fatalf("Expected sink called twice despite errors, got %d", calls)
	}
}

func TestAggregatorNilSink(t *testing.T) {
	agg := NewAggregator(nil, time.Second)
	// Must not panic.
	agg.Emit(models.ProgressSnapshot{Phase: models.PhaseDownloading})
}

func TestSnapshotComputesTotalsAndETA(t *testing.T) {
	total := int64(1000)
	snap := snapshot(models.PhaseDownloading, 500, &total, time.Now().Add(-time.Second), "a.bin", "Direct Link")

	if snap.BytesTotal == nil || *snap.BytesTotal != total {
		t.Fatal("Expected total carried through")
	}
	pct := snap.Percent()
	if pct == nil || *pct < 49 || *pct > 51 {
		t.Errorf("Expected percent near 50, got %v", pct)
	}
	if snap.ETASeconds == nil {
		t.Error("Expected ETA when rate and total are known")
	}
	if snap.Label == "" {
		t.Error("Expected human-readable label")
	}
}

func TestSnapshotUnknownTotal(t *testing.T) {
	snap := snapshot(models.PhaseDownloading, 500, nil, time.Now(), "a.bin", "Direct Link")
	if snap.BytesTotal != nil {
		t.Error("Expected nil total")
	}
	if snap.Percent() != nil {
		t.Error("Expected nil percent when total unknown")
	}
	if snap.ETASeconds != nil {
		t.Error("Expected nil ETA when total unknown")
	}
}
