package exercise

import (
	"errors"
	"fmt"

	"github.com/claude/repcoach/internal/calibration"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/posture"
	"github.com/claude/repcoach/internal/scoring"
)

// ErrInvalidConfig is returned by New and Config.Validate for thresholds
// that cannot produce a working state machine.
var ErrInvalidConfig = errors.New("invalid exercise configuration")

// Config holds the tunables for every exercise. Displacements are in units
// of the calibrated torso length.
type Config struct {
	MinConfidence    float64            `yaml:"min_confidence" json:"min_confidence"`
	SmoothingWindow  int                `yaml:"smoothing_window" json:"smoothing_window"`
	MaxMissingFrames int                `yaml:"max_missing_frames" json:"max_missing_frames"`
	Calibration      calibration.Config `yaml:"calibration" json:"calibration"`
	Scoring          scoring.Rule       `yaml:"scoring" json:"scoring"`
	Jump             JumpConfig         `yaml:"jump" json:"jump"`
	Squat            SquatConfig        `yaml:"squat" json:"squat"`
	Pushup           PushupConfig       `yaml:"pushup" json:"pushup"`
}

// Trigger selects the joint pair whose rise detects a jump.
type Trigger string

const (
	TriggerHip   Trigger = "hip"
	TriggerKnee  Trigger = "knee"
	TriggerAnkle Trigger = "ankle"
)

// JumpConfig is the grounded/airborne hysteresis pair. A jump takes off
// when the rise exceeds Up and lands when it falls below Down.
type JumpConfig struct {
	Trigger Trigger            `yaml:"trigger" json:"trigger"`
	Up      float64            `yaml:"up" json:"up"`
	Down    float64            `yaml:"down" json:"down"`
	Posture posture.Thresholds `yaml:"posture" json:"posture"`
}

// SquatConfig drives the four-phase squat machine.
type SquatConfig struct {
	Descend  float64            `yaml:"descend" json:"descend"`
	MinDepth float64            `yaml:"min_depth" json:"min_depth"`
	Reversal float64            `yaml:"reversal" json:"reversal"`
	Stand    float64            `yaml:"stand" json:"stand"`
	Posture  posture.Thresholds `yaml:"posture" json:"posture"`
}

// PushupConfig is the up/down hysteresis pair plus the depth a full
// repetition must reach.
type PushupConfig struct {
	Down     float64            `yaml:"down" json:"down"`
	Up       float64            `yaml:"up" json:"up"`
	MinDepth float64            `yaml:"min_depth" json:"min_depth"`
	Posture  posture.Thresholds `yaml:"posture" json:"posture"`
}

// DefaultConfig returns thresholds tuned for a webcam at 30 fps.
func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.5,
		SmoothingWindow:  3,
		MaxMissingFrames: 15,
		Calibration:      calibration.DefaultConfig(),
		Scoring:          scoring.DefaultRule(),
		Jump: JumpConfig{
			Trigger: TriggerHip,
			Up:      0.15,
			Down:    0.05,
			Posture: posture.DefaultThresholds(models.Jump),
		},
		Squat: SquatConfig{
			Descend:  0.08,
			MinDepth: 0.25,
			Reversal: 0.05,
			Stand:    0.04,
			Posture:  posture.DefaultThresholds(models.Squat),
		},
		Pushup: PushupConfig{
			Down:     0.12,
			Up:       0.06,
			MinDepth: 0.35,
			Posture:  posture.DefaultThresholds(models.Pushup),
		},
	}
}

// JumpHeight returns the jump thresholds for a named target height: low
// tracks the ankles, medium the knees and high the knees with a higher
// take-off line.
func JumpHeight(name string) (JumpConfig, bool) {
	j := DefaultConfig().Jump
	switch name {
	case "low":
		j.Trigger, j.Up, j.Down = TriggerAnkle, 0.10, 0.04
	case "medium":
		j.Trigger, j.Up, j.Down = TriggerKnee, 0.15, 0.05
	case "high":
		j.Trigger, j.Up, j.Down = TriggerKnee, 0.30, 0.08
	default:
		return JumpConfig{}, false
	}
	return j, true
}

// Validate checks every section. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in (0, 1], got %v", c.MinConfidence)
	}
	if c.SmoothingWindow < 1 {
		return errors.New("smoothing_window must be at least 1")
	}
	if c.MaxMissingFrames < 0 {
		return errors.New("max_missing_frames must not be negative")
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Jump.validate(); err != nil {
		return fmt.Errorf("jump: %w", err)
	}
	if err := c.Squat.validate(); err != nil {
		return fmt.Errorf("squat: %w", err)
	}
	if err := c.Pushup.validate(); err != nil {
		return fmt.Errorf("pushup: %w", err)
	}
	return nil
}

func (j JumpConfig) validate() error {
	switch j.Trigger {
	case TriggerHip, TriggerKnee, TriggerAnkle:
	default:
		return fmt.Errorf("unknown trigger %q", j.Trigger)
	}
	if j.Down <= 0 || j.Up <= j.Down {
		return fmt.Errorf("need 0 < down < up, got down=%v up=%v", j.Down, j.Up)
	}
	return j.Posture.Validate()
}

func (s SquatConfig) validate() error {
	if !(0 < s.Stand && s.Stand < s.Descend && s.Descend < s.MinDepth) {
		return fmt.Errorf("need 0 < stand < descend < min_depth, got stand=%v descend=%v min_depth=%v",
			s.Stand, s.Descend, s.MinDepth)
	}
	if s.Reversal <= 0 {
		return errors.New("reversal must be positive")
	}
	return s.Posture.Validate()
}

func (p PushupConfig) validate() error {
	if !(0 < p.Up && p.Up < p.Down && p.Down < p.MinDepth) {
		return fmt.Errorf("need 0 < up < down < min_depth, got up=%v down=%v min_depth=%v",
			p.Up, p.Down, p.MinDepth)
	}
	return p.Posture.Validate()
}
