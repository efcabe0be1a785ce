package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repcoach/internal/models"
)

// GetUserStats returns lifetime totals for a user, broken down by exercise,
// plus the most frequent posture warnings.
func (db *DB) GetUserStats(ctx context.Context, userID int) (*models.UserStats, error) {
	stats := &models.UserStats{UserID: userID, ByExercise: []models.ExerciseStats{}, TopWarnings: []models.WarningCount{}}

	rows, err := db.Pool.Query(ctx,
		`SELECT exercise, COUNT(*), SUM(total_reps), SUM(total_points), SUM(total_bad_moves),
		        SUM(total_danger_reps), MAX(total_points), MAX(started_at)
		 FROM exercise_sessions
		 WHERE user_id = $1 AND status <> 'active'
		 GROUP BY exercise
		 ORDER BY exercise`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying exercise stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.ExerciseStats
		var exercise string
		if err := rows.Scan(&exercise, &e.Sessions, &e.TotalReps, &e.TotalPoints, &e.TotalBadMoves,
			&e.DangerReps, &e.BestSession, &e.LastSession); err != nil {
			return nil, fmt.Errorf("scanning exercise stats: %w", err)
		}
		e.Exercise = models.Exercise(exercise)
		if e.TotalReps > 0 {
			e.AvgPointsPerRep = float64(e.TotalPoints) / float64(e.TotalReps)
		}
		stats.Sessions += e.Sessions
		stats.TotalReps += e.TotalReps
		stats.TotalPoints += e.TotalPoints
		stats.ByExercise = append(stats.ByExercise, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Warnings are stored per rep as a text array.
	wrows, err := db.Pool.Query(ctx,
		`SELECT w, COUNT(*)
		 FROM rep_events, UNNEST(warnings) AS w
		 WHERE user_id = $1
		 GROUP BY w
		 ORDER BY COUNT(*) DESC, w ASC
		 LIMIT 5`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying warnings: %w", err)
	}
	defer wrows.Close()

	for wrows.Next() {
		var w models.WarningCount
		if err := wrows.Scan(&w.Warning, &w.Count); err != nil {
			return nil, fmt.Errorf("scanning warnings: %w", err)
		}
		stats.TopWarnings = append(stats.TopWarnings, w)
	}
	return stats, wrows.Err()
}

// GetDailyStats returns per-day, per-exercise rep totals for the last days
// days (UTC), oldest first.
func (db *DB) GetDailyStats(ctx context.Context, userID, days int) ([]models.DailyStat, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc('day', occurred_at AT TIME ZONE 'UTC') AS day, exercise,
		        COUNT(*), SUM(points), SUM(bad_moves),
		        COUNT(DISTINCT session_id), COUNT(*) FILTER (WHERE has_danger)
		 FROM rep_events
		 WHERE user_id = $1 AND occurred_at >= $2
		 GROUP BY day, exercise
		 ORDER BY day ASC, exercise ASC`,
		userID, since)
	if err != nil {
		return nil, fmt.Errorf("querying daily stats: %w", err)
	}
	defer rows.Close()

	result := []models.DailyStat{}
	for rows.Next() {
		var d models.DailyStat
		var exercise string
		if err := rows.Scan(&d.Date, &exercise, &d.Reps, &d.Points, &d.BadMoves,
			&d.Sessions, &d.DangerReps); err != nil {
			return nil, fmt.Errorf("scanning daily stats: %w", err)
		}
		d.Exercise = models.Exercise(exercise)
		result = append(result, d)
	}
	return result, rows.Err()
}
