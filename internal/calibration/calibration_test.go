package calibration

import (
	"math"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/pose"
)

func standing(hipY float64) pose.Frame {
	return pose.NewFrame(time.Time{}, map[pose.Joint]pose.Landmark{
		pose.Nose:          {X: 0.5, Y: hipY - 0.35, Confidence: 1},
		pose.LeftShoulder:  {X: 0.45, Y: hipY - 0.2, Confidence: 1},
		pose.RightShoulder: {X: 0.55, Y: hipY - 0.2, Confidence: 1},
		pose.LeftHip:       {X: 0.46, Y: hipY, Confidence: 1},
		pose.RightHip:      {X: 0.54, Y: hipY, Confidence: 1},
		pose.LeftKnee:      {X: 0.46, Y: hipY + 0.2, Confidence: 1},
		pose.RightKnee:     {X: 0.54, Y: hipY + 0.2, Confidence: 1},
		pose.LeftAnkle:     {X: 0.46, Y: hipY + 0.4, Confidence: 1},
		pose.RightAnkle:    {X: 0.54, Y: hipY + 0.4, Confidence: 1},
	})
}

func missing() pose.Frame {
	return pose.NewFrame(time.Time{}, nil)
}

// TestCalibrationCompletesAfterWindow verifies the baseline becomes ready on
// exactly the Window-th valid frame and reflects the observed posture.
func TestCalibrationCompletesAfterWindow(t *testing.T) {
	c := New(Config{Window: 10, MaxGap: 2, TrimFraction: 0.1}, 0.5, []pose.Joint{pose.LeftKnee, pose.RightKnee})
	for i := 0; i < 9; i++ {
		if c.Observe(standing(0.5)) {
			t.Fatalf("ready after %d frames, want 10", i+1)
		}
	}
	if c.Ready() {
		t.Fatal("should not be ready before window is full")
	}
	if !c.Observe(standing(0.5)) {
		t.Fatal("10th frame should complete calibration")
	}
	b, ok := c.Baseline()
	if !ok {
		t.Fatal("baseline not available")
	}
	if math.Abs(b.HipY-0.5) > 1e-9 {
		t.Errorf("HipY = %v, want 0.5", b.HipY)
	}
	if math.Abs(b.TorsoLength-0.2) > 1e-9 {
		t.Errorf("TorsoLength = %v, want 0.2", b.TorsoLength)
	}
	if math.Abs(b.StandingHeight-0.75) > 1e-9 {
		t.Errorf("StandingHeight = %v, want 0.75", b.StandingHeight)
	}
	if math.Abs(b.KneeAngle-180) > 1e-3 {
		t.Errorf("KneeAngle = %v, want 180", b.KneeAngle)
	}
	if c.Observe(standing(0.9)) {
		t.Error("observing after ready must not recalibrate")
	}
	if b2, _ := c.Baseline(); b2 != b {
		t.Error("baseline changed after completion")
	}
}

// TestCalibrationResetsAfterGap verifies that the subject leaving the frame
// for more than MaxGap frames restarts the window.
func TestCalibrationResetsAfterGap(t *testing.T) {
	c := New(Config{Window: 5, MaxGap: 2}, 0.5, nil)
	for i := 0; i < 4; i++ {
		c.Observe(standing(0.5))
	}
	c.Observe(missing())
	c.Observe(missing())
	if got := c.Status().Progress; got != 4 {
		t.Fatalf("progress after short gap = %d, want 4", got)
	}
	c.Observe(missing())
	if got := c.Status().Progress; got != 0 {
		t.Fatalf("progress after long gap = %d, want 0", got)
	}
	for i := 0; i < 4; i++ {
		c.Observe(standing(0.5))
	}
	if c.Ready() {
		t.Fatal("should need a full window after reset")
	}
	c.Observe(standing(0.5))
	if !c.Ready() {
		t.Fatal("should be ready after a full window")
	}
}

// TestCalibrationRequiredJoints verifies frames lacking an exercise's
// required joint do not count.
func TestCalibrationRequiredJoints(t *testing.T) {
	c := New(Config{Window: 2, MaxGap: 10}, 0.5, []pose.Joint{pose.LeftWrist})
	c.Observe(standing(0.5))
	c.Observe(standing(0.5))
	if c.Ready() {
		t.Error("frames without the wrist should not count")
	}
}

func TestTrimmedMean(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		frac float64
		want float64
	}{
		{"empty", nil, 0.1, 0},
		{"no trim", []float64{1, 2, 3}, 0, 2},
		{"outliers trimmed", []float64{100, 1, 1, 1, 1, 1, 1, 1, 1, -100}, 0.1, 1},
		{"single", []float64{4}, 0.4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimmedMean(tt.vals, tt.frac); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TrimmedMean = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := (Config{Window: 0}).Validate(); err == nil {
		t.Error("zero window should be rejected")
	}
	if err := (Config{Window: 5, TrimFraction: 0.5}).Validate(); err == nil {
		t.Error("trim fraction 0.5 should be rejected")
	}
}
