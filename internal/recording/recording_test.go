package recording

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
)

const sampleCSV = `frame_ms,joint,x,y,confidence
0,11,0.45,0.30,0.98
0,12,0.55,0.30,0.97
0,23,0.46,0.50,0.95
33,11,0.45,0.31,0.98
33,12,0.55,0.31,0.96
66,11,0.45,0.32,0.40
`

const testID = "0b5c2f9e-6a43-4e0c-9d35-2a1c7e3f8b10"

func TestParseName(t *testing.T) {
	tests := []struct {
		name       string
		wantKind   models.Exercise
		wantFormat Format
		wantGz     bool
		wantErr    bool
	}{
		{"squat_20260301_" + testID + ".csv", models.Squat, FormatCSV, false, false},
		{"/data/pushups_20260301_" + testID + ".jsonl.gz", models.Pushup, FormatJSONL, true, false},
		{"push_up_20260301_" + testID + ".jsonl", models.Pushup, FormatJSONL, false, false},
		{"jump_20260301_" + testID + ".txt", "", "", false, true},
		{"rowing_20260301_" + testID + ".csv", "", "", false, true},
		{"squat_2026-03-01_" + testID + ".csv", "", "", false, true},
		{"squat_20261301_" + testID + ".csv", "", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseName(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrBadName) {
					t.Errorf("err = %v, want ErrBadName", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if meta.Exercise != tt.wantKind || meta.Format != tt.wantFormat || meta.Compressed != tt.wantGz {
				t.Errorf("meta = %+v", meta)
			}
			if meta.ID.String() != testID || !meta.Date.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("id/date = %s %s", meta.ID, meta.Date)
			}
		})
	}
}

// TestParseCSVGroupsRows verifies rows sharing a frame_ms become one frame
// timed relative to the recording start.
func TestParseCSVGroupsRows(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	frames, err := ParseCSV(strings.NewReader(sampleCSV), start)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if got := frames[1].Time.Sub(start); got != 33*time.Millisecond {
		t.Errorf("frame 1 offset = %v, want 33ms", got)
	}
	if lm := frames[0].Landmarks[pose.LeftHip]; lm.Y != 0.50 || lm.Confidence != 0.95 {
		t.Errorf("left hip = %+v", lm)
	}
	if lm := frames[1].Landmarks[pose.LeftHip]; lm.Confidence != 0 {
		t.Errorf("undetected joint has confidence %v", lm.Confidence)
	}
	if lm := frames[2].Landmarks[pose.LeftShoulder]; lm.Confidence != 0.40 {
		t.Errorf("frame 2 shoulder = %+v", lm)
	}
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong header", "t,joint,x,y,c\n0,11,0.1,0.2,0.9\n"},
		{"joint out of range", "frame_ms,joint,x,y,confidence\n0,40,0.1,0.2,0.9\n"},
		{"bad number", "frame_ms,joint,x,y,confidence\n0,11,abc,0.2,0.9\n"},
		{"nan coordinate", "frame_ms,joint,x,y,confidence\n0,23,0.46,NaN,1\n"},
		{"infinite confidence", "frame_ms,joint,x,y,confidence\n0,23,0.46,0.5,+Inf\n"},
		{"backwards", "frame_ms,joint,x,y,confidence\n33,11,0.1,0.2,0.9\n0,11,0.1,0.2,0.9\n"},
		{"short row", "frame_ms,joint,x,y,confidence\n0,11,0.1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(tt.input), time.Time{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseJSONL(t *testing.T) {
	in := []pose.Frame{
		pose.NewFrame(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), map[pose.Joint]pose.Landmark{
			pose.Nose: {X: 0.5, Y: 0.2, Confidence: 0.9},
		}),
		pose.NewFrame(time.Date(2026, 3, 1, 10, 0, 0, 33e6, time.UTC), map[pose.Joint]pose.Landmark{
			pose.LeftKnee: {X: 0.4, Y: 0.7, Confidence: 0.8},
		}),
	}
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, in); err != nil {
		t.Fatal(err)
	}
	buf.WriteString("\n\n")

	out, err := ParseJSONL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[1].Landmarks[pose.LeftKnee] != in[1].Landmarks[pose.LeftKnee] || !out[1].Time.Equal(in[1].Time) {
		t.Errorf("frames = %+v", out)
	}

	_, err = ParseJSONL(strings.NewReader(`{"t":"2026-03-01T10:00:00Z","landmarks":[{"id":99,"x":0,"y":0,"c":1}]}`))
	if !errors.Is(err, pose.ErrJointOutOfRange) {
		t.Errorf("err = %v, want ErrJointOutOfRange", err)
	}
}

// TestLoadAndFind writes a plain and a gzip recording plus an unrelated
// file, then checks Find and Load.
func TestLoadAndFind(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "march")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	csvPath := filepath.Join(dir, "squat_20260301_"+testID+".csv")
	if err := os.WriteFile(csvPath, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if err := WriteJSONL(zw, []pose.Frame{pose.NewFrame(time.Time{}, nil)}); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	gzPath := filepath.Join(sub, "jump_20260302_"+testID+".jsonl.gz")
	if err := os.WriteFile(gzPath, gz.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := Find(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("found %v, want 2 recordings", paths)
	}

	rec, err := Load(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Exercise != models.Squat || len(rec.Frames) != 3 {
		t.Errorf("csv recording = %s with %d frames", rec.Exercise, len(rec.Frames))
	}
	rec, err = Load(gzPath)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Exercise != models.Jump || len(rec.Frames) != 1 {
		t.Errorf("gz recording = %s with %d frames", rec.Exercise, len(rec.Frames))
	}
}
