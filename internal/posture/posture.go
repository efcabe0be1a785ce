// Package posture evaluates form faults on the extremal frame of a completed
// repetition.
package posture

import (
	"errors"
	"fmt"
	"math"

	"github.com/claude/repcoach/internal/calibration"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
)

// Severity grades a fault.
type Severity string

const (
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

// Fault messages as they appear in RepEvent warnings.
const (
	MsgIncompleteDepth = "incomplete depth"
	MsgKneeValgus      = "knee valgus"
	MsgForwardLean     = "forward lean"
	MsgKneesOverToes   = "knees over toes"
	MsgBackArch        = "back arch"
	MsgHipSag          = "hip sag"
	MsgHeadPosition    = "head position"
)

// Fault is one triggered rule.
type Fault struct {
	Rule      string   `json:"rule"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	Magnitude float64  `json:"magnitude"`
}

// Thresholds are the tolerances for one exercise. Distances are in units of
// the calibrated torso length, angles in degrees.
type Thresholds struct {
	ValgusTolerance  float64 `yaml:"valgus_tolerance" json:"valgus_tolerance"`
	MaxLeanDegrees   float64 `yaml:"max_lean_degrees" json:"max_lean_degrees"`
	KneeToeTolerance float64 `yaml:"knee_toe_tolerance" json:"knee_toe_tolerance"`
	BackArchDegrees  float64 `yaml:"back_arch_degrees" json:"back_arch_degrees"`
	HipSagTolerance  float64 `yaml:"hip_sag_tolerance" json:"hip_sag_tolerance"`
	PikeTolerance    float64 `yaml:"pike_tolerance" json:"pike_tolerance"`
	HeadTolerance    float64 `yaml:"head_tolerance" json:"head_tolerance"`
	DangerFactor     float64 `yaml:"danger_factor" json:"danger_factor"`
}

// DefaultThresholds returns the tolerances used for kind.
func DefaultThresholds(kind models.Exercise) Thresholds {
	t := Thresholds{
		ValgusTolerance:  0.03,
		MaxLeanDegrees:   30,
		KneeToeTolerance: 0.1,
		BackArchDegrees:  20,
		HipSagTolerance:  0.1,
		PikeTolerance:    0.15,
		HeadTolerance:    0.1,
		DangerFactor:     2,
	}
	switch kind {
	case models.Jump:
		t.MaxLeanDegrees = 25
	case models.Squat:
		t.MaxLeanDegrees = 45
	}
	return t
}

// Validate rejects non-positive tolerances.
func (t Thresholds) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"valgus_tolerance", t.ValgusTolerance},
		{"max_lean_degrees", t.MaxLeanDegrees},
		{"knee_toe_tolerance", t.KneeToeTolerance},
		{"back_arch_degrees", t.BackArchDegrees},
		{"hip_sag_tolerance", t.HipSagTolerance},
		{"pike_tolerance", t.PikeTolerance},
		{"head_tolerance", t.HeadTolerance},
	}
	for _, c := range checks {
		if !(c.v > 0) {
			return fmt.Errorf("posture.%s must be positive, got %v", c.name, c.v)
		}
	}
	if t.DangerFactor < 1 {
		return errors.New("posture.danger_factor must be at least 1")
	}
	return nil
}

// Input is everything a rule may look at.
type Input struct {
	Frame         pose.Frame
	Baseline      calibration.Baseline
	Thresholds    Thresholds
	MinConfidence float64
	// Peak is the extremal normalized displacement of the cycle and MinDepth
	// the displacement a full repetition must reach. Zero MinDepth disables
	// the depth rule.
	Peak     float64
	MinDepth float64
}

// Scale is the body size every distance is normalized by.
func (in *Input) Scale() float64 {
	return in.Baseline.TorsoLength
}

// Rule is one named fault predicate. CycleOnly rules need the whole cycle
// and are skipped for live per-frame feedback.
type Rule struct {
	Name      string
	CycleOnly bool
	Check     func(in *Input) (Fault, bool)
}

// Rules returns the ordered rule set for kind. The order is the message
// order in every RepEvent.
func Rules(kind models.Exercise) []Rule {
	switch kind {
	case models.Jump:
		return []Rule{kneeValgus, forwardLean, kneesOverToes}
	case models.Squat:
		return []Rule{incompleteDepth, kneeValgus, forwardLean, kneesOverToes, backwardLean}
	case models.Pushup:
		return []Rule{incompleteDepth, hipSag, pike, headPosition}
	}
	return nil
}

// Result is the outcome of evaluating a rule set.
type Result struct {
	Faults []Fault `json:"faults"`
}

// BadMoves is the number of triggered rules.
func (r Result) BadMoves() int { return len(r.Faults) }

// HasDanger reports whether any triggered rule is danger severity.
func (r Result) HasDanger() bool {
	for _, f := range r.Faults {
		if f.Severity == Danger {
			return true
		}
	}
	return false
}

// Messages returns the fault messages in rule order. It never returns nil.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Faults))
	for _, f := range r.Faults {
		out = append(out, f.Message)
	}
	return out
}

// Evaluate runs every rule against in and collects the triggered faults.
func Evaluate(rules []Rule, in Input) Result {
	return evaluate(rules, &in, false)
}

// EvaluateLive runs the rules that make sense on a single frame.
func EvaluateLive(rules []Rule, in Input) Result {
	return evaluate(rules, &in, true)
}

func evaluate(rules []Rule, in *Input, live bool) Result {
	var res Result
	if in.Scale() <= 0 {
		return res
	}
	for _, r := range rules {
		if live && r.CycleOnly {
			continue
		}
		if f, ok := r.Check(in); ok {
			f.Rule = r.Name
			res.Faults = append(res.Faults, f)
		}
	}
	return res
}

// escalate grades a geometric fault: danger once the measurement exceeds
// the tolerance by the danger factor.
func escalate(mag, tol, factor float64) Severity {
	if factor > 0 && mag > tol*factor {
		return Danger
	}
	return Warning
}

func fault(msg string, sev Severity, mag float64) Fault {
	return Fault{Message: msg, Severity: sev, Magnitude: mag}
}

var incompleteDepth = Rule{
	Name:      "incomplete_depth",
	CycleOnly: true,
	Check: func(in *Input) (Fault, bool) {
		if in.MinDepth <= 0 || in.Peak >= in.MinDepth {
			return Fault{}, false
		}
		return fault(MsgIncompleteDepth, Warning, in.Peak/in.MinDepth), true
	},
}

// kneeValgus measures how far each knee sits inside the ankle-hip line,
// toward the body midline.
var kneeValgus = Rule{
	Name: "knee_valgus",
	Check: func(in *Input) (Fault, bool) {
		f := &in.Frame
		mid, ok := f.Mid(pose.LeftHip, pose.RightHip, in.MinConfidence)
		if !ok {
			return Fault{}, false
		}
		worst, seen := 0.0, false
		for _, side := range [][3]pose.Joint{
			{pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
			{pose.RightHip, pose.RightKnee, pose.RightAnkle},
		} {
			hip, ok1 := f.Point(side[0], in.MinConfidence)
			knee, ok2 := f.Point(side[1], in.MinConfidence)
			ankle, ok3 := f.Point(side[2], in.MinConfidence)
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			lineX := pose.LineXAt(ankle, hip, knee.Y)
			inward := (math.Abs(lineX-mid.X) - math.Abs(knee.X-mid.X)) / in.Scale()
			if !seen || inward > worst {
				worst, seen = inward, true
			}
		}
		t := in.Thresholds
		if !seen || worst <= t.ValgusTolerance {
			return Fault{}, false
		}
		return fault(MsgKneeValgus, escalate(worst, t.ValgusTolerance, t.DangerFactor), worst), true
	},
}

var forwardLean = Rule{
	Name: "forward_lean",
	Check: func(in *Input) (Fault, bool) {
		deg, ok := torsoLean(in)
		t := in.Thresholds
		if !ok || deg <= t.MaxLeanDegrees {
			return Fault{}, false
		}
		return fault(MsgForwardLean, escalate(deg, t.MaxLeanDegrees, t.DangerFactor), deg), true
	},
}

// torsoLean is the torso angle from vertical, hip-mid to shoulder-mid. A
// torso leaning away from the toes is left to the back arch rule.
func torsoLean(in *Input) (float64, bool) {
	f := &in.Frame
	hip, ok1 := f.Mid(pose.LeftHip, pose.RightHip, in.MinConfidence)
	sh, ok2 := f.Mid(pose.LeftShoulder, pose.RightShoulder, in.MinConfidence)
	if !ok1 || !ok2 {
		return 0, false
	}
	if dir, ok := facing(in); ok && (sh.X-hip.X)*dir < 0 {
		return 0, false
	}
	return pose.AngleFromVertical(hip, sh)
}

// facing returns +1 or -1 for the direction the toes point along x, taken
// from whichever foot is visible.
func facing(in *Input) (float64, bool) {
	f := &in.Frame
	for _, side := range [][2]pose.Joint{
		{pose.LeftHeel, pose.LeftFootIndex},
		{pose.RightHeel, pose.RightFootIndex},
	} {
		heel, ok1 := f.Point(side[0], in.MinConfidence)
		toe, ok2 := f.Point(side[1], in.MinConfidence)
		if !ok1 || !ok2 {
			continue
		}
		dx := toe.X - heel.X
		if math.Abs(dx) < 1e-6 {
			continue
		}
		return math.Copysign(1, dx), true
	}
	return 0, false
}

var kneesOverToes = Rule{
	Name: "knees_over_toes",
	Check: func(in *Input) (Fault, bool) {
		f := &in.Frame
		dir, ok := facing(in)
		if !ok {
			return Fault{}, false
		}
		worst, seen := 0.0, false
		for _, side := range [][2]pose.Joint{
			{pose.LeftKnee, pose.LeftFootIndex},
			{pose.RightKnee, pose.RightFootIndex},
		} {
			knee, ok1 := f.Point(side[0], in.MinConfidence)
			toe, ok2 := f.Point(side[1], in.MinConfidence)
			if !ok1 || !ok2 {
				continue
			}
			past := (knee.X - toe.X) * dir / in.Scale()
			if !seen || past > worst {
				worst, seen = past, true
			}
		}
		t := in.Thresholds
		if !seen || worst <= t.KneeToeTolerance {
			return Fault{}, false
		}
		return fault(MsgKneesOverToes, escalate(worst, t.KneeToeTolerance, t.DangerFactor), worst), true
	},
}

// backwardLean flags shoulders falling behind the hips, opposite the
// direction the feet point.
var backwardLean = Rule{
	Name: "back_arch",
	Check: func(in *Input) (Fault, bool) {
		dir, ok := facing(in)
		if !ok {
			return Fault{}, false
		}
		f := &in.Frame
		hip, ok1 := f.Mid(pose.LeftHip, pose.RightHip, in.MinConfidence)
		sh, ok2 := f.Mid(pose.LeftShoulder, pose.RightShoulder, in.MinConfidence)
		if !ok1 || !ok2 || (sh.X-hip.X)*dir >= 0 {
			return Fault{}, false
		}
		deg, ok := pose.AngleFromVertical(hip, sh)
		if !ok || deg <= in.Thresholds.BackArchDegrees {
			return Fault{}, false
		}
		return fault(MsgBackArch, Danger, deg), true
	},
}

// bodyLine returns the shoulder-mid, hip-mid and ankle-mid points used by
// the plank rules.
func bodyLine(in *Input) (sh, hip, ankle pose.Point, ok bool) {
	f := &in.Frame
	var ok1, ok2, ok3 bool
	sh, ok1 = f.Mid(pose.LeftShoulder, pose.RightShoulder, in.MinConfidence)
	hip, ok2 = f.Mid(pose.LeftHip, pose.RightHip, in.MinConfidence)
	ankle, ok3 = f.Mid(pose.LeftAnkle, pose.RightAnkle, in.MinConfidence)
	return sh, hip, ankle, ok1 && ok2 && ok3
}

// hipOffset is how far the hips sit below (positive) or above (negative)
// the shoulder-ankle line, in torso lengths.
func hipOffset(in *Input) (float64, bool) {
	sh, hip, ankle, ok := bodyLine(in)
	if !ok {
		return 0, false
	}
	lineY := pose.LineYAt(sh, ankle, hip.X)
	return (hip.Y - lineY) / in.Scale(), true
}

var hipSag = Rule{
	Name: "hip_sag",
	Check: func(in *Input) (Fault, bool) {
		off, ok := hipOffset(in)
		if !ok || off <= in.Thresholds.HipSagTolerance {
			return Fault{}, false
		}
		return fault(MsgHipSag, Danger, off), true
	},
}

var pike = Rule{
	Name: "pike",
	Check: func(in *Input) (Fault, bool) {
		off, ok := hipOffset(in)
		if !ok || -off <= in.Thresholds.PikeTolerance {
			return Fault{}, false
		}
		return fault(MsgBackArch, Danger, -off), true
	},
}

// headPosition flags the nose dropping below or lifting above the line
// through hips and shoulders.
var headPosition = Rule{
	Name: "head_position",
	Check: func(in *Input) (Fault, bool) {
		f := &in.Frame
		sh, ok1 := f.Mid(pose.LeftShoulder, pose.RightShoulder, in.MinConfidence)
		hip, ok2 := f.Mid(pose.LeftHip, pose.RightHip, in.MinConfidence)
		nose, ok3 := f.Point(pose.Nose, in.MinConfidence)
		if !ok1 || !ok2 || !ok3 {
			return Fault{}, false
		}
		lineY := pose.LineYAt(hip, sh, nose.X)
		dev := math.Abs(nose.Y-lineY) / in.Scale()
		t := in.Thresholds
		if dev <= t.HeadTolerance {
			return Fault{}, false
		}
		return fault(MsgHeadPosition, escalate(dev, t.HeadTolerance, t.DangerFactor), dev), true
	},
}
