package replay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/exercise"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
	"github.com/claude/repcoach/internal/recording"
)

func body(lift float64, t time.Time) pose.Frame {
	up := lift * 0.2
	lm := func(x, y float64) pose.Landmark { return pose.Landmark{X: x, Y: y - up, Confidence: 0.9} }
	return pose.NewFrame(t, map[pose.Joint]pose.Landmark{
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

// writeJumps writes a jump recording: a calibration window then n jumps.
func writeJumps(t *testing.T, dir string, n int) (string, int) {
	t.Helper()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var frames []pose.Frame
	add := func(lift float64, count int) {
		for i := 0; i < count; i++ {
			frames = append(frames, body(lift, start.Add(time.Duration(len(frames))*33*time.Millisecond)))
		}
	}
	add(0, 30)
	for i := 0; i < n; i++ {
		add(0.4, 4)
		add(0, 4)
	}
	path := filepath.Join(dir, "jump_20260301_"+uuid.NewString()+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := recording.WriteJSONL(f, frames); err != nil {
		t.Fatal(err)
	}
	return path, len(frames)
}

// fakeServer mimics the session endpoints and counts requests.
type fakeServer struct {
	mu         sync.Mutex
	starts     int
	batches    int
	frames     int
	ends       []string
	framesCode int
	startCode  int
	heights    []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("X-API-Key") != "k" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions":
		f.starts++
		var req struct {
			JumpHeight string `json:"jump_height"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.heights = append(f.heights, req.JumpHeight)
		if f.startCode != 0 {
			w.WriteHeader(f.startCode)
			w.Write([]byte(`{"error":"nope"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": uuid.New()})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/frames"):
		f.batches++
		if f.framesCode != 0 {
			w.WriteHeader(f.framesCode)
			return
		}
		var req struct {
			Frames []pose.Frame `json:"frames"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.frames += len(req.Frames)
		json.NewEncoder(w).Encode(FramesResult{Events: []models.RepEvent{}})
	case r.Method == http.MethodDelete:
		status := r.URL.Query().Get("status")
		f.ends = append(f.ends, status)
		json.NewEncoder(w).Encode(endResult{Status: status, Totals: models.Totals{Reps: 2, Points: 20}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newReplayer(t *testing.T, url, dir, stateDir string, dryRun bool) *Replayer {
	t.Helper()
	state, err := OpenStateDB(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { state.Close() })
	client := NewClient(url, "k")
	client.backoff = time.Millisecond
	return New(client, state, dir, dryRun, 10, exercise.DefaultConfig(), slog.New(slog.DiscardHandler))
}

// TestRunReplaysOnce verifies a recording is sent in batches and skipped on
// the next run.
func TestRunReplaysOnce(t *testing.T) {
	dir, stateDir := t.TempDir(), t.TempDir()
	_, n := writeJumps(t, dir, 2)
	fake := &fakeServer{}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	stats, err := newReplayer(t, ts.URL, dir, stateDir, false).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesReplayed != 1 || stats.FramesSent != n || stats.Totals.Reps != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if want := (n + 9) / 10; fake.batches != want || fake.frames != n {
		t.Errorf("batches = %d frames = %d, want %d batches of %d frames", fake.batches, fake.frames, want, n)
	}
	if len(fake.ends) != 1 || fake.ends[0] != "" {
		t.Errorf("ends = %v, want one completed", fake.ends)
	}

	stats, err = newReplayer(t, ts.URL, dir, stateDir, false).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 || fake.starts != 1 {
		t.Errorf("second run stats = %+v, starts = %d", stats, fake.starts)
	}
}

// TestJumpHeightIsSent verifies the chosen jump height reaches the server
// with each new jump session.
func TestJumpHeightIsSent(t *testing.T) {
	dir := t.TempDir()
	writeJumps(t, dir, 1)
	fake := &fakeServer{}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()
	client := NewClient(ts.URL, "k")
	client.SetJumpHeight("high")
	if _, err := New(client, state, dir, false, 10, exercise.DefaultConfig(), nil).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fake.heights) != 1 || fake.heights[0] != "high" {
		t.Errorf("jump heights sent = %v, want [high]", fake.heights)
	}
}

func TestConflictCountsAsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeJumps(t, dir, 1)
	ts := httptest.NewServer(&fakeServer{startCode: http.StatusConflict})
	defer ts.Close()

	stats, err := newReplayer(t, ts.URL, dir, t.TempDir(), false).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 || stats.FilesErrored != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestServerErrorCancelsSession verifies 5xx batches are retried and the
// session is then cancelled.
func TestServerErrorCancelsSession(t *testing.T) {
	dir := t.TempDir()
	writeJumps(t, dir, 1)
	fake := &fakeServer{framesCode: http.StatusInternalServerError}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	stats, err := newReplayer(t, ts.URL, dir, t.TempDir(), false).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 1 || stats.FilesReplayed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if fake.batches != 3 {
		t.Errorf("frame attempts = %d, want 3", fake.batches)
	}
	if len(fake.ends) != 1 || fake.ends[0] != models.StatusCancelled {
		t.Errorf("ends = %v, want one cancelled", fake.ends)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	dir := t.TempDir()
	writeJumps(t, dir, 1)
	fake := &fakeServer{framesCode: http.StatusBadRequest}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	newReplayer(t, ts.URL, dir, t.TempDir(), false).Run(context.Background())
	if fake.batches != 1 {
		t.Errorf("frame attempts = %d, want 1", fake.batches)
	}
}

// TestDryRunUsesLocalEngine verifies dry-run counts reps without a server.
func TestDryRunUsesLocalEngine(t *testing.T) {
	dir := t.TempDir()
	writeJumps(t, dir, 3)

	r := New(nil, nil, dir, true, 0, exercise.DefaultConfig(), slog.New(slog.DiscardHandler))
	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesReplayed != 1 || stats.Totals.Reps != 3 || stats.Totals.Points != 30 {
		t.Errorf("stats = %+v", stats)
	}
}
