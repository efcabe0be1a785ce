package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// SessionRow is a row of the exercise_sessions table.
type SessionRow struct {
	ID          uuid.UUID        `json:"id"`
	UserID      int              `json:"user_id"`
	Exercise    Exercise         `json:"exercise"`
	Status      string           `json:"status"`
	Source      string           `json:"source"`
	RecordingID *uuid.UUID       `json:"recording_id,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
	Totals                       // flattened into total_* fields
	Baseline    *json.RawMessage `json:"baseline,omitempty"`
}

// RepRow is a row of the rep_events table.
type RepRow struct {
	SessionID  uuid.UUID `json:"session_id"`
	UserID     int       `json:"user_id"`
	Exercise   Exercise  `json:"exercise"`
	Number     int       `json:"repetition_number"`
	Points     int       `json:"points"`
	BadMoves   int       `json:"bad_moves"`
	Warnings   []string  `json:"warnings"`
	HasDanger  bool      `json:"has_danger"`
	Peak       float64   `json:"peak"`
	DurationMs int       `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewRepRow converts an engine event into its persisted form.
func NewRepRow(sessionID uuid.UUID, userID int, ev RepEvent) RepRow {
	warnings := ev.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return RepRow{
		SessionID:  sessionID,
		UserID:     userID,
		Exercise:   ev.Exercise,
		Number:     ev.Number,
		Points:     ev.Points,
		BadMoves:   ev.BadMoves,
		Warnings:   warnings,
		HasDanger:  ev.HasDanger,
		Peak:       ev.Peak,
		DurationMs: int(ev.Duration.Milliseconds()),
		OccurredAt: ev.Timestamp,
	}
}

// LeaderboardEntry is one ranked user for an exercise.
type LeaderboardEntry struct {
	Rank        int      `json:"rank"`
	UserID      int      `json:"user_id"`
	Login       string   `json:"login"`
	DisplayName string   `json:"display_name"`
	Exercise    Exercise `json:"exercise"`
	TotalPoints int64    `json:"total_points"`
	TotalReps   int64    `json:"total_reps"`
	Sessions    int64    `json:"sessions"`
	BestSession int      `json:"best_session_points"`
}

// ExerciseStats is the per-exercise aggregate for one user.
type ExerciseStats struct {
	Exercise        Exercise   `json:"exercise"`
	Sessions        int64      `json:"sessions"`
	TotalReps       int64      `json:"total_reps"`
	TotalPoints     int64      `json:"total_points"`
	TotalBadMoves   int64      `json:"total_bad_moves"`
	DangerReps      int64      `json:"danger_reps"`
	BestSession     int        `json:"best_session_points"`
	AvgPointsPerRep float64    `json:"avg_points_per_rep"`
	LastSession     *time.Time `json:"last_session,omitempty"`
}

// UserStats is the lifetime summary for one user.
type UserStats struct {
	UserID      int             `json:"user_id"`
	TotalReps   int64           `json:"total_reps"`
	TotalPoints int64           `json:"total_points"`
	Sessions    int64           `json:"sessions"`
	ByExercise  []ExerciseStats `json:"by_exercise"`
	TopWarnings []WarningCount  `json:"top_warnings"`
}

// WarningCount is how often a posture warning occurred.
type WarningCount struct {
	Warning string `json:"warning"`
	Count   int64  `json:"count"`
}

// DailyStat is one day of activity for one exercise.
type DailyStat struct {
	Date       time.Time `json:"date"`
	Exercise   Exercise  `json:"exercise"`
	Reps       int64     `json:"reps"`
	Points     int64     `json:"points"`
	BadMoves   int64     `json:"bad_moves"`
	Sessions   int64     `json:"sessions"`
	DangerReps int64     `json:"danger_reps"`
}
