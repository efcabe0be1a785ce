package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/claude/repcoach/internal/models"
)

func TestRecorderCounters(t *testing.T) {
	m := NewTestManager()
	m.SessionStarted(models.Squat)
	m.FrameProcessed(models.Squat)
	m.FrameProcessed(models.Squat)
	m.RepCompleted(models.RepEvent{Exercise: models.Squat, Points: 6, Warnings: []string{"knee valgus", "forward lean"}})
	m.RepCompleted(models.RepEvent{Exercise: models.Squat, Points: 8, Warnings: []string{"knee valgus"}})
	m.CycleAbandoned(models.Squat)

	if got := testutil.ToFloat64(m.CounterFrames.WithLabelValues("squat")); got != 2 {
		t.Errorf("frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CounterReps.WithLabelValues("squat")); got != 2 {
		t.Errorf("reps = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CounterFaults.WithLabelValues("squat", "knee valgus")); got != 2 {
		t.Errorf("knee valgus faults = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CounterAbandoned.WithLabelValues("squat")); got != 1 {
		t.Errorf("abandoned = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GaugeActiveSessions); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	m.SessionEnded(models.Squat)
	if got := testutil.ToFloat64(m.GaugeActiveSessions); got != 0 {
		t.Errorf("active after end = %v, want 0", got)
	}
}

func TestRegistryExposition(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()
	m.FrameProcessed(models.Jump)
	expected := `
# HELP repcoach_test_frames_processed_total Landmark frames processed
# TYPE repcoach_test_frames_processed_total counter
repcoach_test_frames_processed_total{exercise="jump"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "repcoach_test_frames_processed_total"); err != nil {
		t.Error(err)
	}
}

func TestSetupPrometheus(t *testing.T) {
	reg := SetupPrometheus()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(mfs) == 0 {
		t.Error("expected runtime collectors to be registered")
	}
}
