// Package importer runs landmark recordings through the engine offline and
// stores the resulting sessions and repetitions directly in PostgreSQL.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/exercise"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/recording"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

// Store is the persistence the importer needs. *storage.DB implements it.
type Store interface {
	SessionExistsForRecording(ctx context.Context, recordingID uuid.UUID) (bool, error)
	ImportSession(ctx context.Context, row models.SessionRow, reps []models.RepRow) (bool, error)
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log storage.ImportLog) error
}

var _ Store = (*storage.DB)(nil)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	FramesRead       int
	SessionsInserted int
	RepsInserted     int64
	Totals           models.Totals
}

// Importer reads recordings from a directory and inserts sessions into the DB.
type Importer struct {
	db     Store
	engine exercise.Config
	userID int
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

// New creates a new Importer. Sessions are attributed to userID.
func New(db Store, engine exercise.Config, userID int, log *slog.Logger, dryRun bool) *Importer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Importer{db: db, engine: engine, userID: userID, log: log, dryRun: dryRun}
}

// Import processes every recording under dir. Recordings already stored
// (matched by the id in their file name) are skipped. Unless dry-running,
// the run is recorded in import_logs.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	if err := imp.engine.Validate(); err != nil {
		return &imp.stats, err
	}
	start := time.Now()
	paths, err := recording.Find(dir)
	if err != nil {
		return &imp.stats, err
	}

	var logID int64
	if !imp.dryRun {
		logID, err = imp.db.InsertImportLog(ctx, storage.ImportLog{
			UserID: imp.userID,
			Source: "recordings",
			Status: "running",
		})
		if err != nil {
			return &imp.stats, err
		}
	}

	var runErr error
	for _, path := range paths {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		if err := imp.importFile(ctx, path); err != nil {
			imp.stats.FilesErrored++
			imp.log.Warn("import failed", "file", path, "error", err)
		}
	}

	if !imp.dryRun {
		imp.finishLog(logID, dir, start, runErr)
	}
	return &imp.stats, runErr
}

func (imp *Importer) importFile(ctx context.Context, path string) error {
	meta, err := recording.ParseName(path)
	if err != nil {
		return err
	}
	if !imp.dryRun {
		exists, err := imp.db.SessionExistsForRecording(ctx, meta.ID)
		if err != nil {
			return err
		}
		if exists {
			imp.stats.FilesSkipped++
			return nil
		}
	}

	rec, err := recording.Load(path)
	if err != nil {
		return err
	}
	if len(rec.Frames) == 0 {
		imp.stats.FilesSkipped++
		return nil
	}
	imp.stats.FilesProcessed++
	imp.stats.FramesRead += len(rec.Frames)

	row, reps, err := imp.run(rec)
	if err != nil {
		return err
	}
	imp.stats.Totals.Reps += row.Reps
	imp.stats.Totals.Points += row.Points
	imp.stats.Totals.BadMoves += row.BadMoves
	imp.stats.Totals.Dangers += row.Dangers
	imp.log.Info("processed recording", "file", filepath.Base(path), "exercise", rec.Exercise,
		"frames", len(rec.Frames), "reps", row.Reps, "points", row.Points)

	if imp.dryRun {
		imp.stats.RepsInserted += int64(len(reps))
		return nil
	}

	created, err := imp.db.ImportSession(ctx, row, reps)
	if err != nil {
		return err
	}
	if created {
		imp.stats.SessionsInserted++
		imp.stats.RepsInserted += int64(len(reps))
	} else {
		imp.stats.FilesSkipped++
	}
	return nil
}

// run feeds the recording through a fresh session and returns the finished
// session row and its repetitions.
func (imp *Importer) run(rec *recording.Recording) (models.SessionRow, []models.RepRow, error) {
	sess, err := session.New(imp.userID, rec.Exercise, imp.engine, imp.log, nil)
	if err != nil {
		return models.SessionRow{}, nil, err
	}

	var reps []models.RepRow
	for _, f := range rec.Frames {
		step, err := sess.Process(f)
		if err != nil {
			return models.SessionRow{}, nil, err
		}
		if step.Event != nil {
			reps = append(reps, models.NewRepRow(sess.ID, imp.userID, *step.Event))
		}
	}
	calib := sess.Calibration()
	totals, err := sess.End()
	if err != nil {
		return models.SessionRow{}, nil, err
	}

	startedAt, endedAt := rec.Frames[0].Time, rec.Frames[len(rec.Frames)-1].Time
	if startedAt.IsZero() {
		startedAt, endedAt = rec.Date, rec.Date
	}
	recordingID := rec.ID
	row := models.SessionRow{
		ID:          sess.ID,
		UserID:      imp.userID,
		Exercise:    rec.Exercise,
		Status:      models.StatusCompleted,
		Source:      "import",
		RecordingID: &recordingID,
		StartedAt:   startedAt,
		EndedAt:     &endedAt,
		Totals:      totals,
	}
	if calib.Baseline != nil {
		raw, err := json.Marshal(calib.Baseline)
		if err != nil {
			return models.SessionRow{}, nil, fmt.Errorf("encoding baseline: %w", err)
		}
		msg := json.RawMessage(raw)
		row.Baseline = &msg
	}
	return row, reps, nil
}

func (imp *Importer) finishLog(id int64, dir string, start time.Time, runErr error) {
	status := "success"
	var errMsg *string
	if runErr != nil {
		status = "error"
		msg := runErr.Error()
		errMsg = &msg
	} else if imp.stats.FilesErrored > 0 {
		status = "partial"
	}
	durationMs := int(time.Since(start).Milliseconds())
	meta, _ := json.Marshal(map[string]any{
		"dir":             dir,
		"files_processed": imp.stats.FilesProcessed,
		"files_skipped":   imp.stats.FilesSkipped,
		"files_errored":   imp.stats.FilesErrored,
		"sessions":        imp.stats.SessionsInserted,
	})
	raw := json.RawMessage(meta)

	// The run context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := imp.db.UpdateImportLog(ctx, id, storage.ImportLog{
		Status:       status,
		FramesRead:   imp.stats.FramesRead,
		RepsInserted: imp.stats.RepsInserted,
		DurationMs:   &durationMs,
		ErrorMessage: errMsg,
		Metadata:     &raw,
	})
	if err != nil {
		imp.log.Error("failed to log import", "error", err)
	}
}
