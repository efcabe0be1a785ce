package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestParseExercise verifies that the common spellings map onto the
// canonical names and anything else is rejected.
func TestParseExercise(t *testing.T) {
	cases := []struct {
		input string
		want  Exercise
		ok    bool
	}{
		{"jump", Jump, true},
		{"vertical_jump", Jump, true},
		{"squats", Squat, true},
		{"push-up", Pushup, true},
		{"push_up", Pushup, true},
		{"Pushup", "", false},
		{"plank", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseExercise(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseExercise(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewRepRow(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	row := NewRepRow(id, 4, RepEvent{
		Exercise:  Squat,
		Number:    3,
		Points:    8,
		BadMoves:  1,
		Peak:      0.42,
		Duration:  1500 * time.Millisecond,
		Timestamp: at,
	})
	if row.SessionID != id || row.UserID != 4 || row.Number != 3 || row.Points != 8 {
		t.Errorf("row = %+v", row)
	}
	if row.DurationMs != 1500 || !row.OccurredAt.Equal(at) {
		t.Errorf("duration = %d, occurred = %s", row.DurationMs, row.OccurredAt)
	}
	if row.Warnings == nil || len(row.Warnings) != 0 {
		t.Errorf("warnings = %#v, want empty slice", row.Warnings)
	}
}
