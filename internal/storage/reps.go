package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
)

// InsertRepEvent stores one repetition. Returns false if it was already
// stored; a repeated insert never changes the row.
func (db *DB) InsertRepEvent(ctx context.Context, row models.RepRow) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO rep_events (session_id, repetition_number, user_id, exercise, points, bad_moves,
		 warnings, has_danger, peak, duration_ms, occurred_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (session_id, repetition_number) DO NOTHING`,
		row.SessionID, row.Number, row.UserID, string(row.Exercise), row.Points, row.BadMoves,
		row.Warnings, row.HasDanger, row.Peak, row.DurationMs, row.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("inserting rep %d: %w", row.Number, err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertRepEvents batch-inserts repetitions. Returns count inserted.
func (db *DB) InsertRepEvents(ctx context.Context, rows []models.RepRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query, args := repInsertQuery(rows)
	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting reps: %w", err)
	}
	return tag.RowsAffected(), nil
}

// repBatchSize keeps one insert under PostgreSQL's 65535 parameter limit
// (11 params per row).
const repBatchSize = 5000

func repInsertQuery(rows []models.RepRow) (string, []any) {
	const cols = 11
	query := `INSERT INTO rep_events (session_id, repetition_number, user_id, exercise, points, bad_moves,
		warnings, has_danger, peak, duration_ms, occurred_at) VALUES `
	args := make([]any, 0, len(rows)*cols)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		warnings := r.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		args = append(args, r.SessionID, r.Number, r.UserID, string(r.Exercise), r.Points, r.BadMoves,
			warnings, r.HasDanger, r.Peak, r.DurationMs, r.OccurredAt)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT (session_id, repetition_number) DO NOTHING"
	return query, args
}

// QuerySessionReps returns the repetitions of a session in order.
func (db *DB) QuerySessionReps(ctx context.Context, sessionID uuid.UUID, userID int) ([]models.RepRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT session_id, user_id, exercise, repetition_number, points, bad_moves, warnings,
		 has_danger, peak, duration_ms, occurred_at
		 FROM rep_events
		 WHERE session_id = $1 AND user_id = $2
		 ORDER BY repetition_number ASC`,
		sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying reps: %w", err)
	}
	defer rows.Close()

	result := []models.RepRow{}
	for rows.Next() {
		var r models.RepRow
		var exercise string
		if err := rows.Scan(&r.SessionID, &r.UserID, &exercise, &r.Number, &r.Points, &r.BadMoves,
			&r.Warnings, &r.HasDanger, &r.Peak, &r.DurationMs, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning rep: %w", err)
		}
		r.Exercise = models.Exercise(exercise)
		result = append(result, r)
	}
	return result, rows.Err()
}
