package exercise

import (
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
)

// squat tracks the hip-mid drop below standing height through four
// phases. Returning to standing completes the repetition; posture is judged
// on the deepest frame.
type squat struct {
	core
	sc SquatConfig
}

func newSquat(cfg Config, opts []Option) *squat {
	m := &squat{sc: cfg.Squat}
	m.core = newCore(models.Squat, cfg, PhaseStanding,
		[]pose.Joint{pose.LeftKnee, pose.RightKnee, pose.LeftAnkle, pose.RightAnkle}, opts)
	m.thresholds = cfg.Squat.Posture
	m.minDepth = cfg.Squat.MinDepth
	return m
}

func (m *squat) depth(f *pose.Frame) (float64, bool) {
	y, ok := m.midY(f, pose.LeftHip, pose.RightHip)
	if !ok {
		return 0, false
	}
	return pose.Displacement(y, m.base.HipY, m.scale())
}

func (m *squat) Update(f pose.Frame) (models.RepEvent, bool) {
	v, ok := m.sample(&f, m.depth)
	if !ok {
		return models.RepEvent{}, false
	}
	if m.phase == PhaseStanding {
		if v > m.sc.Descend {
			m.phase = PhaseDescending
			m.begin(&f, v)
			if v >= m.sc.MinDepth {
				m.phase = PhaseBottom
			}
		}
		return models.RepEvent{}, false
	}
	if v < m.sc.Stand {
		return m.complete(&f), true
	}
	newMax := m.track(&f, v)
	switch m.phase {
	case PhaseDescending, PhaseBottom:
		if v <= m.peak-m.sc.Reversal {
			m.phase = PhaseAscending
		} else if m.peak >= m.sc.MinDepth {
			m.phase = PhaseBottom
		}
	case PhaseAscending:
		if newMax {
			m.phase = PhaseDescending
			if m.peak >= m.sc.MinDepth {
				m.phase = PhaseBottom
			}
		}
	}
	return models.RepEvent{}, false
}
