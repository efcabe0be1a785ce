// Package calibration computes a per-session reference posture from the
// first frames of a session so later measurements can be normalized to body
// size and camera placement.
package calibration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/claude/repcoach/internal/pose"
)

// Config controls the warm-up window.
type Config struct {
	Window       int     `yaml:"window" json:"window"`
	MaxGap       int     `yaml:"max_gap" json:"max_gap"`
	TrimFraction float64 `yaml:"trim_fraction" json:"trim_fraction"`
}

// DefaultConfig returns a one-second warm-up at 30 fps.
func DefaultConfig() Config {
	return Config{Window: 30, MaxGap: 5, TrimFraction: 0.1}
}

// Validate rejects windows that could never complete or trims that would
// discard every sample.
func (c Config) Validate() error {
	if c.Window < 1 {
		return errors.New("calibration.window must be at least 1")
	}
	if c.MaxGap < 0 {
		return errors.New("calibration.max_gap must not be negative")
	}
	if c.TrimFraction < 0 || c.TrimFraction >= 0.5 {
		return fmt.Errorf("calibration.trim_fraction must be in [0, 0.5), got %v", c.TrimFraction)
	}
	return nil
}

// Baseline is the reference geometry measured while the subject holds the
// starting position. Optional values that were never observed stay zero.
type Baseline struct {
	HipY           float64 `json:"hip_y"`
	KneeY          float64 `json:"knee_y"`
	AnkleY         float64 `json:"ankle_y"`
	ShoulderY      float64 `json:"shoulder_y"`
	NoseY          float64 `json:"nose_y"`
	TorsoLength    float64 `json:"torso_length"`
	StandingHeight float64 `json:"standing_height"`
	KneeAngle      float64 `json:"knee_angle"`
	Frames         int     `json:"frames"`
}

// Status is the diagnostic view of a controller.
type Status struct {
	Ready    bool      `json:"ready"`
	Progress int       `json:"progress"`
	Window   int       `json:"window"`
	Baseline *Baseline `json:"baseline,omitempty"`
}

// Controller accumulates consecutive valid frames until the window is full.
// It is owned by a single session and is not safe for concurrent use.
type Controller struct {
	cfg      Config
	minConf  float64
	required []pose.Joint

	samples []sample
	gap     int
	ready   bool
	base    Baseline
}

// sample holds the raw measurements of one frame; NaN-free by construction,
// optional values carry their own presence flag.
type sample struct {
	hipY, shoulderY, torso float64
	kneeY, ankleY, noseY   opt
	height, kneeAngle      opt
}

type opt struct {
	v  float64
	ok bool
}

// New creates a controller. A frame counts toward the window only if every
// joint in required is above minConf; shoulders and hips are always required
// because they define the body scale.
func New(cfg Config, minConf float64, required []pose.Joint) *Controller {
	req := []pose.Joint{pose.LeftShoulder, pose.RightShoulder, pose.LeftHip, pose.RightHip}
	for _, j := range required {
		if !containsJoint(req, j) {
			req = append(req, j)
		}
	}
	return &Controller{
		cfg:      cfg,
		minConf:  minConf,
		required: req,
		samples:  make([]sample, 0, cfg.Window),
	}
}

// Ready reports whether the baseline has been computed.
func (c *Controller) Ready() bool { return c.ready }

// Baseline returns the computed baseline; ok is false while calibrating.
func (c *Controller) Baseline() (Baseline, bool) {
	return c.base, c.ready
}

// Status returns the calibration progress.
func (c *Controller) Status() Status {
	st := Status{Ready: c.ready, Progress: len(c.samples), Window: c.cfg.Window}
	if c.ready {
		b := c.base
		st.Baseline = &b
		st.Progress = c.cfg.Window
	}
	return st
}

// Observe feeds one frame and returns true on the frame that completes
// calibration. Frames after that are ignored.
func (c *Controller) Observe(f pose.Frame) bool {
	if c.ready {
		return false
	}
	s, ok := c.measure(&f)
	if !ok {
		c.gap++
		if c.gap > c.cfg.MaxGap {
			// Subject left the frame: restart the window.
			c.samples = c.samples[:0]
			c.gap = 0
		}
		return false
	}
	c.gap = 0
	c.samples = append(c.samples, s)
	if len(c.samples) < c.cfg.Window {
		return false
	}
	c.base = c.compute()
	c.ready = true
	c.samples = nil
	return true
}

func (c *Controller) measure(f *pose.Frame) (sample, bool) {
	if !f.Available(c.minConf, c.required...) {
		return sample{}, false
	}
	sh, _ := f.Mid(pose.LeftShoulder, pose.RightShoulder, c.minConf)
	hip, _ := f.Mid(pose.LeftHip, pose.RightHip, c.minConf)
	torso, ok := pose.TorsoLength(f, c.minConf)
	if !ok {
		return sample{}, false
	}
	s := sample{hipY: hip.Y, shoulderY: sh.Y, torso: torso}

	knee, kneeOK := f.Mid(pose.LeftKnee, pose.RightKnee, c.minConf)
	if kneeOK {
		s.kneeY = opt{knee.Y, true}
	}
	ankle, ankleOK := f.Mid(pose.LeftAnkle, pose.RightAnkle, c.minConf)
	if ankleOK {
		s.ankleY = opt{ankle.Y, true}
	}
	nose, noseOK := f.Point(pose.Nose, c.minConf)
	if noseOK {
		s.noseY = opt{nose.Y, true}
	}
	if noseOK && ankleOK {
		s.height = opt{ankle.Y - nose.Y, true}
	}
	if kneeOK && ankleOK {
		if a, ok := pose.Angle(hip, knee, ankle); ok {
			s.kneeAngle = opt{a, true}
		}
	}
	return s, true
}

func (c *Controller) compute() Baseline {
	col := func(get func(sample) opt) float64 {
		vals := make([]float64, 0, len(c.samples))
		for _, s := range c.samples {
			if o := get(s); o.ok {
				vals = append(vals, o.v)
			}
		}
		return TrimmedMean(vals, c.cfg.TrimFraction)
	}
	req := func(get func(sample) float64) float64 {
		return col(func(s sample) opt { return opt{get(s), true} })
	}
	return Baseline{
		HipY:           req(func(s sample) float64 { return s.hipY }),
		ShoulderY:      req(func(s sample) float64 { return s.shoulderY }),
		TorsoLength:    req(func(s sample) float64 { return s.torso }),
		KneeY:          col(func(s sample) opt { return s.kneeY }),
		AnkleY:         col(func(s sample) opt { return s.ankleY }),
		NoseY:          col(func(s sample) opt { return s.noseY }),
		StandingHeight: col(func(s sample) opt { return s.height }),
		KneeAngle:      col(func(s sample) opt { return s.kneeAngle }),
		Frames:         len(c.samples),
	}
}

// TrimmedMean sorts vals and averages them after dropping frac of the samples
// from each end. It returns 0 for an empty slice.
func TrimmedMean(vals []float64, frac float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	k := int(float64(len(sorted)) * frac)
	if 2*k >= len(sorted) {
		k = (len(sorted) - 1) / 2
	}
	sorted = sorted[k : len(sorted)-k]
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

func containsJoint(js []pose.Joint, j pose.Joint) bool {
	for _, x := range js {
		if x == j {
			return true
		}
	}
	return false
}
