package storage

import (
	"context"
	"fmt"

	"github.com/claude/repcoach/internal/models"
)

// GetLeaderboard ranks users by total points for one exercise across all
// completed and cancelled sessions. Ties rank by reps, then by login.
func (db *DB) GetLeaderboard(ctx context.Context, exercise models.Exercise, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT u.id, u.login, u.display_name,
		        SUM(s.total_points), SUM(s.total_reps), COUNT(*), MAX(s.total_points)
		 FROM exercise_sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.exercise = $1 AND s.status <> 'active'
		 GROUP BY u.id, u.login, u.display_name
		 ORDER BY SUM(s.total_points) DESC, SUM(s.total_reps) DESC, u.login ASC
		 LIMIT $2`,
		string(exercise), limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	result := []models.LeaderboardEntry{}
	for rows.Next() {
		e := models.LeaderboardEntry{Exercise: exercise, Rank: len(result) + 1}
		if err := rows.Scan(&e.UserID, &e.Login, &e.DisplayName,
			&e.TotalPoints, &e.TotalReps, &e.Sessions, &e.BestSession); err != nil {
			return nil, fmt.Errorf("scanning leaderboard: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
