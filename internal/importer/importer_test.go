package importer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/exercise"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
	"github.com/claude/repcoach/internal/recording"
	"github.com/claude/repcoach/internal/storage"
)

type fakeStore struct {
	known    map[uuid.UUID]bool
	sessions []models.SessionRow
	reps     []models.RepRow
	logs     []storage.ImportLog
}

func (f *fakeStore) SessionExistsForRecording(_ context.Context, id uuid.UUID) (bool, error) {
	return f.known[id], nil
}

func (f *fakeStore) ImportSession(_ context.Context, row models.SessionRow, reps []models.RepRow) (bool, error) {
	f.sessions = append(f.sessions, row)
	f.reps = append(f.reps, reps...)
	return true, nil
}

func (f *fakeStore) InsertImportLog(_ context.Context, l storage.ImportLog) (int64, error) {
	f.logs = append(f.logs, l)
	return int64(len(f.logs)), nil
}

func (f *fakeStore) UpdateImportLog(_ context.Context, id int64, l storage.ImportLog) error {
	f.logs[id-1] = l
	return nil
}

var recStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func body(lift float64, i int) pose.Frame {
	up := lift * 0.2
	lm := func(x, y float64) pose.Landmark { return pose.Landmark{X: x, Y: y - up, Confidence: 0.9} }
	return pose.NewFrame(recStart.Add(time.Duration(i)*33*time.Millisecond), map[pose.Joint]pose.Landmark{
		pose.Nose:          lm(0.5, 0.15),
		pose.LeftShoulder:  lm(0.45, 0.3),
		pose.RightShoulder: lm(0.55, 0.3),
		pose.LeftHip:       lm(0.46, 0.5),
		pose.RightHip:      lm(0.54, 0.5),
		pose.LeftKnee:      lm(0.46, 0.7),
		pose.RightKnee:     lm(0.54, 0.7),
		pose.LeftAnkle:     lm(0.46, 0.9),
		pose.RightAnkle:    lm(0.54, 0.9),
	})
}

// writeJumps writes a jump recording with n jumps and returns its id.
func writeJumps(t *testing.T, dir string, n int) uuid.UUID {
	t.Helper()
	var frames []pose.Frame
	add := func(lift float64, count int) {
		for i := 0; i < count; i++ {
			frames = append(frames, body(lift, len(frames)))
		}
	}
	add(0, 30)
	for i := 0; i < n; i++ {
		add(0.4, 4)
		add(0, 4)
	}
	id := uuid.New()
	f, err := os.Create(filepath.Join(dir, "jump_20260301_"+id.String()+".jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := recording.WriteJSONL(f, frames); err != nil {
		t.Fatal(err)
	}
	return id
}

func newImporter(db Store, dryRun bool) *Importer {
	return New(db, exercise.DefaultConfig(), 1, slog.New(slog.DiscardHandler), dryRun)
}

// TestImportStoresSessions verifies each recording becomes one completed
// session with its reps, baseline and recording id.
func TestImportStoresSessions(t *testing.T) {
	dir := t.TempDir()
	id := writeJumps(t, dir, 2)
	db := &fakeStore{}

	stats, err := newImporter(db, false).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 1 || stats.SessionsInserted != 1 || stats.RepsInserted != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if len(db.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(db.sessions))
	}
	row := db.sessions[0]
	if row.Status != models.StatusCompleted || row.Source != "import" || row.Reps != 2 || row.Points != 20 {
		t.Errorf("session row = %+v", row)
	}
	if row.RecordingID == nil || *row.RecordingID != id {
		t.Errorf("recording id = %v, want %s", row.RecordingID, id)
	}
	if !row.StartedAt.Equal(recStart) || row.EndedAt == nil || !row.EndedAt.After(recStart) {
		t.Errorf("times = %s .. %v", row.StartedAt, row.EndedAt)
	}
	if row.Baseline == nil {
		t.Error("baseline missing")
	}
	if len(db.reps) != 2 || db.reps[1].Number != 2 || db.reps[0].SessionID != row.ID {
		t.Errorf("reps = %+v", db.reps)
	}

	if len(db.logs) != 1 || db.logs[0].Status != "success" || db.logs[0].RepsInserted != 2 || db.logs[0].FramesRead != stats.FramesRead {
		t.Errorf("import log = %+v", db.logs)
	}
}

func TestImportSkipsKnownRecordings(t *testing.T) {
	dir := t.TempDir()
	id := writeJumps(t, dir, 1)
	writeJumps(t, dir, 1)
	db := &fakeStore{known: map[uuid.UUID]bool{id: true}}

	stats, err := newImporter(db, false).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 || stats.SessionsInserted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestDryRunWritesNothing verifies dry-run counts reps but touches no table.
func TestDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeJumps(t, dir, 3)
	db := &fakeStore{}

	stats, err := newImporter(db, true).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.RepsInserted != 3 || stats.Totals.Points != 30 {
		t.Errorf("stats = %+v", stats)
	}
	if len(db.sessions) != 0 || len(db.logs) != 0 {
		t.Errorf("dry run wrote %d sessions and %d logs", len(db.sessions), len(db.logs))
	}
}

func TestBrokenRecordingIsCounted(t *testing.T) {
	dir := t.TempDir()
	writeJumps(t, dir, 1)
	bad := filepath.Join(dir, "squat_20260301_"+uuid.NewString()+".csv")
	if err := os.WriteFile(bad, []byte("frame_ms,joint,x,y,confidence\n0,99,0,0,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	db := &fakeStore{}

	stats, err := newImporter(db, false).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 1 || stats.SessionsInserted != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if db.logs[0].Status != "partial" {
		t.Errorf("log status = %q, want partial", db.logs[0].Status)
	}
}

func TestInvalidEngineConfig(t *testing.T) {
	cfg := exercise.DefaultConfig()
	cfg.Squat.Stand = 0
	imp := New(&fakeStore{}, cfg, 1, slog.New(slog.DiscardHandler), false)
	if _, err := imp.Import(context.Background(), t.TempDir()); err == nil {
		t.Error("expected config error")
	}
}
