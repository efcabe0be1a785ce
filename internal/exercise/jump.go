package exercise

import (
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
)

// jump counts vertical jumps. The signal is the rise of the trigger joint
// pair above its calibrated height; a landing completes the repetition and
// posture is judged at the top of the flight.
type jump struct {
	core
	jc         JumpConfig
	l, r       pose.Joint
	baselineOf func() float64
}

func newJump(cfg Config, opts []Option) *jump {
	m := &jump{jc: cfg.Jump}
	switch cfg.Jump.Trigger {
	case TriggerKnee:
		m.l, m.r = pose.LeftKnee, pose.RightKnee
		m.baselineOf = func() float64 { return m.base.KneeY }
	case TriggerAnkle:
		m.l, m.r = pose.LeftAnkle, pose.RightAnkle
		m.baselineOf = func() float64 { return m.base.AnkleY }
	default:
		m.l, m.r = pose.LeftHip, pose.RightHip
		m.baselineOf = func() float64 { return m.base.HipY }
	}
	m.core = newCore(models.Jump, cfg, PhaseGrounded, []pose.Joint{m.l, m.r}, opts)
	m.thresholds = cfg.Jump.Posture
	return m
}

// rise is positive when the trigger joints are above their baseline. Image
// y grows downward.
func (m *jump) rise(f *pose.Frame) (float64, bool) {
	y, ok := m.midY(f, m.l, m.r)
	if !ok {
		return 0, false
	}
	return pose.Displacement(m.baselineOf(), y, m.scale())
}

func (m *jump) Update(f pose.Frame) (models.RepEvent, bool) {
	v, ok := m.sample(&f, m.rise)
	if !ok {
		return models.RepEvent{}, false
	}
	switch m.phase {
	case PhaseGrounded:
		if v > m.jc.Up {
			m.phase = PhaseAirborne
			m.begin(&f, v)
		}
	case PhaseAirborne:
		m.track(&f, v)
		if v < m.jc.Down {
			return m.complete(&f), true
		}
	}
	return models.RepEvent{}, false
}
