package exercise

import (
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
)

// pushup follows the nose drop below the calibrated top position. The nose
// is the most reliably tracked point when the body is horizontal to the
// camera. Returning to the top completes the repetition.
type pushup struct {
	core
	pc PushupConfig
}

func newPushup(cfg Config, opts []Option) *pushup {
	m := &pushup{pc: cfg.Pushup}
	m.core = newCore(models.Pushup, cfg, PhaseUp, []pose.Joint{pose.Nose}, opts)
	m.thresholds = cfg.Pushup.Posture
	m.minDepth = cfg.Pushup.MinDepth
	return m
}

func (m *pushup) drop(f *pose.Frame) (float64, bool) {
	nose, ok := f.Point(pose.Nose, m.cfg.MinConfidence)
	if !ok {
		return 0, false
	}
	return pose.Displacement(nose.Y, m.base.NoseY, m.scale())
}

func (m *pushup) Update(f pose.Frame) (models.RepEvent, bool) {
	v, ok := m.sample(&f, m.drop)
	if !ok {
		return models.RepEvent{}, false
	}
	switch m.phase {
	case PhaseUp:
		if v > m.pc.Down {
			m.phase = PhaseDown
			m.begin(&f, v)
		}
	case PhaseDown:
		m.track(&f, v)
		if v < m.pc.Up {
			return m.complete(&f), true
		}
	}
	return models.RepEvent{}, false
}
