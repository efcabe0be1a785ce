// Package replay sends landmark recordings to a RepCoach server as if they
// were streamed live, or runs them through a local engine in dry-run mode.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/exercise"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/recording"
	"github.com/claude/repcoach/internal/session"
)

// Stats tracks replay progress.
type Stats struct {
	FilesTotal    int
	FilesReplayed int
	FilesSkipped  int
	FilesErrored  int

	FramesSent int
	Totals     models.Totals
}

// Replayer walks a recordings directory and replays each new recording.
type Replayer struct {
	client    *Client
	state     *StateDB
	dir       string
	dryRun    bool
	batchSize int
	engine    exercise.Config
	log       *slog.Logger
	stats     Stats
}

// New creates a new Replayer. client may be nil in dry-run mode; engine is
// only used in dry-run mode.
func New(client *Client, state *StateDB, dir string, dryRun bool, batchSize int, engine exercise.Config, log *slog.Logger) *Replayer {
	if batchSize <= 0 {
		batchSize = 300
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Replayer{
		client:    client,
		state:     state,
		dir:       dir,
		dryRun:    dryRun,
		batchSize: batchSize,
		engine:    engine,
		log:       log,
	}
}

// Run replays every recording under the directory. A failing recording is
// logged and counted; only walking the directory can fail the run.
func (r *Replayer) Run(ctx context.Context) (*Stats, error) {
	paths, err := recording.Find(r.dir)
	if err != nil {
		return &r.stats, err
	}
	r.stats.FilesTotal = len(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return &r.stats, err
		}
		if err := r.replayFile(ctx, path); err != nil {
			r.stats.FilesErrored++
			r.log.Warn("replay failed", "file", path, "error", err)
		}
	}
	return &r.stats, nil
}

func (r *Replayer) replayFile(ctx context.Context, path string) error {
	relPath, err := filepath.Rel(r.dir, path)
	if err != nil {
		relPath = path
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hash, err := HashFile(path)
	if err != nil {
		return fmt.Errorf("hashing: %w", err)
	}

	if !r.dryRun {
		done, err := r.state.IsReplayed(relPath, info.Size(), hash)
		if err != nil {
			return err
		}
		if done {
			r.stats.FilesSkipped++
			return nil
		}
	}

	rec, err := recording.Load(path)
	if err != nil {
		return err
	}

	var sessionID uuid.UUID
	var totals models.Totals
	if r.dryRun {
		totals, err = r.replayLocal(rec)
	} else {
		sessionID, totals, err = r.replayRemote(ctx, rec)
		if errors.Is(err, ErrAlreadyReplayed) {
			r.stats.FilesSkipped++
			r.log.Info("already on server", "file", relPath, "recording", rec.ID)
			return r.state.MarkReplayed(relPath, info.Size(), hash, uuid.Nil, 0, 0)
		}
	}
	if err != nil {
		return err
	}

	r.stats.FilesReplayed++
	r.stats.FramesSent += len(rec.Frames)
	r.stats.Totals.Reps += totals.Reps
	r.stats.Totals.Points += totals.Points
	r.stats.Totals.BadMoves += totals.BadMoves
	r.stats.Totals.Dangers += totals.Dangers
	r.log.Info("replayed", "file", relPath, "exercise", rec.Exercise,
		"frames", len(rec.Frames), "reps", totals.Reps, "points", totals.Points)

	if r.dryRun {
		return nil
	}
	return r.state.MarkReplayed(relPath, info.Size(), hash, sessionID, totals.Reps, totals.Points)
}

// replayRemote streams the recording to the server in batches. A batch
// failure cancels the server session so it does not count as completed.
func (r *Replayer) replayRemote(ctx context.Context, rec *recording.Recording) (uuid.UUID, models.Totals, error) {
	id, err := r.client.StartSession(ctx, rec.Exercise, rec.ID)
	if err != nil {
		return uuid.Nil, models.Totals{}, err
	}

	for start := 0; start < len(rec.Frames); start += r.batchSize {
		end := min(start+r.batchSize, len(rec.Frames))
		if _, err := r.client.SendFrames(ctx, id, rec.Frames[start:end]); err != nil {
			if _, cerr := r.client.EndSession(ctx, id, true); cerr != nil {
				r.log.Warn("cancel session", "session", id, "error", cerr)
			}
			return id, models.Totals{}, fmt.Errorf("sending frames %d-%d: %w", start, end, err)
		}
	}

	totals, err := r.client.EndSession(ctx, id, false)
	return id, totals, err
}

// replayLocal runs the recording through an in-process session.
func (r *Replayer) replayLocal(rec *recording.Recording) (models.Totals, error) {
	sess, err := session.New(0, rec.Exercise, r.engine, r.log, nil)
	if err != nil {
		return models.Totals{}, err
	}
	for _, f := range rec.Frames {
		step, err := sess.Process(f)
		if err != nil {
			return models.Totals{}, err
		}
		if ev := step.Event; ev != nil {
			r.log.Debug("rep", "recording", rec.ID, "number", ev.Number, "points", ev.Points, "warnings", ev.Warnings)
		}
	}
	return sess.End()
}
