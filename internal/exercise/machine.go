// Package exercise turns a stream of landmark frames into counted, scored
// repetitions. Each supported movement is a small hysteresis state machine
// over one smoothed, size-normalized signal.
package exercise

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/repcoach/internal/calibration"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
	"github.com/claude/repcoach/internal/posture"
)

// Phase names the current state of a machine.
type Phase string

const (
	PhaseCalibrating Phase = "calibrating"
	PhaseGrounded    Phase = "grounded"
	PhaseAirborne    Phase = "airborne"
	PhaseStanding    Phase = "standing"
	PhaseDescending  Phase = "descending"
	PhaseBottom      Phase = "bottom"
	PhaseAscending   Phase = "ascending"
	PhaseUp          Phase = "up"
	PhaseDown        Phase = "down"
)

// Machine is the contract shared by every exercise. A Machine belongs to a
// single session and is not safe for concurrent use.
type Machine interface {
	Kind() models.Exercise
	// Update processes one frame and returns a RepEvent when the frame
	// completes a repetition.
	Update(f pose.Frame) (models.RepEvent, bool)
	Calibrated() bool
	Calibration() calibration.Status
	Phase() Phase
	Reps() int
	// Abandoned counts cycles dropped because tracking was lost.
	Abandoned() int
	// Live returns the faults seen on the most recent usable frame. They are
	// feedback only and never scored.
	Live() posture.Result
	// Reset discards any in-progress cycle without emitting an event.
	Reset()
}

// Option configures a machine.
type Option func(*core)

// WithLogger sets the logger used for debug messages about dropped cycles.
func WithLogger(log *slog.Logger) Option {
	return func(c *core) {
		if log != nil {
			c.log = log
		}
	}
}

// New validates cfg and returns the machine for kind.
func New(kind models.Exercise, cfg Config, opts ...Option) (Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case models.Jump:
		return newJump(cfg, opts), nil
	case models.Squat:
		return newSquat(cfg, opts), nil
	case models.Pushup:
		return newPushup(cfg, opts), nil
	}
	return nil, fmt.Errorf("%w: unknown exercise %q", ErrInvalidConfig, kind)
}

// core is the state every machine shares: calibration, smoothing, the gap
// policy and the bookkeeping of the cycle in progress.
type core struct {
	kind       models.Exercise
	cfg        Config
	thresholds posture.Thresholds
	minDepth   float64
	rules      []posture.Rule
	log        *slog.Logger

	cal  *calibration.Controller
	base calibration.Baseline

	initial Phase
	phase   Phase
	window  []float64
	missing int
	live    posture.Result

	reps      int
	abandoned int

	// cycle in progress
	start     time.Time
	peak      float64
	peakFrame pose.Frame
}

func newCore(kind models.Exercise, cfg Config, initial Phase, required []pose.Joint, opts []Option) core {
	c := core{
		kind:    kind,
		cfg:     cfg,
		rules:   posture.Rules(kind),
		log:     slog.New(slog.DiscardHandler),
		cal:     calibration.New(cfg.Calibration, cfg.MinConfidence, required),
		initial: initial,
		phase:   initial,
		window:  make([]float64, 0, cfg.SmoothingWindow),
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func (c *core) Kind() models.Exercise { return c.kind }

func (c *core) Calibrated() bool { return c.cal.Ready() }

func (c *core) Calibration() calibration.Status { return c.cal.Status() }

func (c *core) Phase() Phase {
	if !c.cal.Ready() {
		return PhaseCalibrating
	}
	return c.phase
}

func (c *core) Reps() int { return c.reps }

func (c *core) Abandoned() int { return c.abandoned }

func (c *core) Live() posture.Result { return c.live }

func (c *core) Reset() {
	c.phase = c.initial
	c.window = c.window[:0]
	c.missing = 0
	c.live = posture.Result{}
	c.peak = 0
	c.peakFrame = pose.Frame{}
}

func (c *core) scale() float64 { return c.base.TorsoLength }

// sample runs the calibration gate and the gap policy, then returns the
// smoothed signal for f. ok is false when the frame must not drive any
// transition.
func (c *core) sample(f *pose.Frame, signal func(*pose.Frame) (float64, bool)) (float64, bool) {
	if !c.cal.Ready() {
		if c.cal.Observe(*f) {
			c.base, _ = c.cal.Baseline()
		}
		return 0, false
	}
	raw, ok := signal(f)
	if !ok {
		c.miss()
		return 0, false
	}
	c.missing = 0
	c.live = posture.EvaluateLive(c.rules, c.input(*f, 0))
	return c.smooth(raw), true
}

// miss handles one frame without a usable signal. Too many in a row drop
// the smoothing history; mid-cycle they also abandon the cycle.
func (c *core) miss() {
	c.missing++
	c.live = posture.Result{}
	if c.missing <= c.cfg.MaxMissingFrames {
		return
	}
	c.window = c.window[:0]
	if c.phase == c.initial {
		return
	}
	c.abandoned++
	c.log.Debug("repetition abandoned, tracking lost",
		"exercise", c.kind, "phase", c.phase, "missing_frames", c.missing)
	c.Reset()
}

// smooth pushes v into the rolling window and returns the window mean.
func (c *core) smooth(v float64) float64 {
	if len(c.window) == c.cfg.SmoothingWindow {
		copy(c.window, c.window[1:])
		c.window = c.window[:len(c.window)-1]
	}
	c.window = append(c.window, v)
	var sum float64
	for _, x := range c.window {
		sum += x
	}
	return sum / float64(len(c.window))
}

// begin opens a new cycle at f.
func (c *core) begin(f *pose.Frame, v float64) {
	c.start = f.Time
	c.peak = v
	c.peakFrame = *f
}

// track records f as the extremal frame when v is a new cycle maximum.
func (c *core) track(f *pose.Frame, v float64) bool {
	if v <= c.peak {
		return false
	}
	c.peak = v
	c.peakFrame = *f
	return true
}

// complete closes the cycle at f, evaluates posture on the extremal frame
// and returns the scored event.
func (c *core) complete(f *pose.Frame) models.RepEvent {
	res := posture.Evaluate(c.rules, c.input(c.peakFrame, c.peak))
	c.reps++
	ev := models.RepEvent{
		Exercise:  c.kind,
		Number:    c.reps,
		Points:    c.cfg.Scoring.Points(res.BadMoves()),
		BadMoves:  res.BadMoves(),
		Warnings:  res.Messages(),
		HasDanger: res.HasDanger(),
		Peak:      c.peak,
		Timestamp: f.Time,
	}
	if !c.start.IsZero() && !f.Time.IsZero() {
		ev.Duration = f.Time.Sub(c.start)
	}
	c.phase = c.initial
	c.peak = 0
	c.peakFrame = pose.Frame{}
	return ev
}

func (c *core) input(f pose.Frame, peak float64) posture.Input {
	return posture.Input{
		Frame:         f,
		Baseline:      c.base,
		Thresholds:    c.thresholds,
		MinConfidence: c.cfg.MinConfidence,
		Peak:          peak,
		MinDepth:      c.minDepth,
	}
}

// midY returns the mean y of a left/right joint pair.
func (c *core) midY(f *pose.Frame, l, r pose.Joint) (float64, bool) {
	p, ok := f.Mid(l, r, c.cfg.MinConfidence)
	return p.Y, ok
}
