package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/repcoach/internal/models"
)

const sessionColumns = `id, user_id, exercise, status, source, recording_id, started_at, ended_at,
	total_reps, total_points, total_bad_moves, total_danger_reps, baseline`

// CreateSession inserts a new session row. Returns false if a row with the
// same id or recording id already exists.
func (db *DB) CreateSession(ctx context.Context, row models.SessionRow) (bool, error) {
	status := row.Status
	if status == "" {
		status = models.StatusActive
	}
	source := row.Source
	if source == "" {
		source = "live"
	}
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO exercise_sessions (id, user_id, exercise, status, source, recording_id, started_at,
		 ended_at, total_reps, total_points, total_bad_moves, total_danger_reps, baseline)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT DO NOTHING`,
		row.ID, row.UserID, string(row.Exercise), status, source, row.RecordingID, row.StartedAt,
		row.EndedAt, row.Reps, row.Points, row.BadMoves, row.Dangers, row.Baseline)
	if err != nil {
		return false, fmt.Errorf("inserting session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateSessionTotals stores the running totals of an active session.
func (db *DB) UpdateSessionTotals(ctx context.Context, id uuid.UUID, t models.Totals) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE exercise_sessions
		 SET total_reps = $2, total_points = $3, total_bad_moves = $4, total_danger_reps = $5
		 WHERE id = $1`,
		id, t.Reps, t.Points, t.BadMoves, t.Dangers)
	if err != nil {
		return fmt.Errorf("updating session %s totals: %w", id, err)
	}
	return nil
}

// SetSessionBaseline stores the calibration baseline once it is known.
func (db *DB) SetSessionBaseline(ctx context.Context, id uuid.UUID, baseline any) error {
	raw, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`UPDATE exercise_sessions SET baseline = $2 WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("storing session %s baseline: %w", id, err)
	}
	return nil
}

// EndSession marks the session finished with its final totals.
func (db *DB) EndSession(ctx context.Context, id uuid.UUID, status string, t models.Totals, endedAt time.Time) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE exercise_sessions
		 SET status = $2, ended_at = $3,
		     total_reps = $4, total_points = $5, total_bad_moves = $6, total_danger_reps = $7
		 WHERE id = $1`,
		id, status, endedAt, t.Reps, t.Points, t.BadMoves, t.Dangers)
	if err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ending session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession returns one session owned by userID.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID, userID int) (*models.SessionRow, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exercise_sessions WHERE id = $1 AND user_id = $2`,
		id, userID)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", id, notFound(err))
	}
	return s, nil
}

// QueryRecentSessions returns the most recent sessions for a user, newest
// first. An empty exercise matches all.
func (db *DB) QueryRecentSessions(ctx context.Context, userID int, exercise models.Exercise, limit int) ([]models.SessionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exercise_sessions
		 WHERE user_id = $1 AND ($2::text = '' OR exercise = $2::text)
		 ORDER BY started_at DESC
		 LIMIT $3`,
		userID, string(exercise), limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	result := []models.SessionRow{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// SessionExistsForRecording reports whether a recording was already imported.
func (db *DB) SessionExistsForRecording(ctx context.Context, recordingID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exercise_sessions WHERE recording_id = $1)`, recordingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking recording %s: %w", recordingID, err)
	}
	return exists, nil
}

func scanSession(row interface{ Scan(dest ...any) error }) (*models.SessionRow, error) {
	var s models.SessionRow
	var exercise string
	if err := row.Scan(&s.ID, &s.UserID, &exercise, &s.Status, &s.Source, &s.RecordingID,
		&s.StartedAt, &s.EndedAt, &s.Reps, &s.Points, &s.BadMoves, &s.Dangers, &s.Baseline); err != nil {
		return nil, err
	}
	s.Exercise = models.Exercise(exercise)
	return &s, nil
}

// ImportSession stores a finished session and its repetitions in one
// transaction. Returns false, without writing anything, if the session or
// its recording is already stored.
func (db *DB) ImportSession(ctx context.Context, row models.SessionRow, reps []models.RepRow) (bool, error) {
	created := false
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO exercise_sessions (id, user_id, exercise, status, source, recording_id, started_at,
			 ended_at, total_reps, total_points, total_bad_moves, total_danger_reps, baseline)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			 ON CONFLICT DO NOTHING`,
			row.ID, row.UserID, string(row.Exercise), row.Status, row.Source, row.RecordingID, row.StartedAt,
			row.EndedAt, row.Reps, row.Points, row.BadMoves, row.Dangers, row.Baseline)
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true

		for i := 0; i < len(reps); i += repBatchSize {
			query, args := repInsertQuery(reps[i:min(i+repBatchSize, len(reps))])
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("inserting reps: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("importing session %s: %w", row.ID, err)
	}
	return created, nil
}
