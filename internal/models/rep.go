package models

import "time"

// RepEvent is one completed, scored repetition. It is created once, when the
// cycle completes, and never modified afterwards.
type RepEvent struct {
	Exercise  Exercise      `json:"exercise"`
	Number    int           `json:"repetition_number"`
	Points    int           `json:"points"`
	BadMoves  int           `json:"bad_moves"`
	Warnings  []string      `json:"warnings"`
	HasDanger bool          `json:"has_danger"`
	Peak      float64       `json:"peak"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Totals is the running aggregate for one session.
type Totals struct {
	Reps     int `json:"total_reps"`
	Points   int `json:"total_points"`
	BadMoves int `json:"total_bad_moves"`
	Dangers  int `json:"total_danger_reps"`
}

// Exercise identifies a supported movement.
type Exercise string

const (
	Jump   Exercise = "jump"
	Squat  Exercise = "squat"
	Pushup Exercise = "pushup"
)

// Exercises lists every supported movement in display order.
var Exercises = []Exercise{Jump, Squat, Pushup}

// ParseExercise accepts the canonical names plus a few common spellings.
func ParseExercise(s string) (Exercise, bool) {
	switch s {
	case "jump", "jumps", "vertical_jump":
		return Jump, true
	case "squat", "squats":
		return Squat, true
	case "pushup", "pushups", "push-up", "push_up":
		return Pushup, true
	}
	return "", false
}
