// Package recording reads landmark recordings captured from a pose
// detector. A recording is either JSON Lines (one wire-format frame per
// line) or CSV with one row per detected joint:
//
//	frame_ms,joint,x,y,confidence
//	0,11,0.45,0.30,0.98
//	0,12,0.55,0.30,0.97
//	33,11,0.45,0.31,0.98
//
// Files are named <exercise>_<YYYYMMDD>_<uuid>.<jsonl|csv>, optionally
// gzip-compressed with a trailing .gz.
package recording

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
)

// Format is the on-disk encoding of a recording.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

var ErrBadName = errors.New("recording: file name does not match <exercise>_<YYYYMMDD>_<uuid>.<jsonl|csv>")

// nameRe matches: squat_20260301_0b5c2f9e-6a43-4e0c-9d35-2a1c7e3f8b10.csv.gz
var nameRe = regexp.MustCompile(`^(.+)_(\d{8})_([0-9a-fA-F-]{36})\.(jsonl|csv)(\.gz)?$`)

// Meta is what a recording's file name says about it.
type Meta struct {
	Exercise   models.Exercise
	Date       time.Time
	ID         uuid.UUID
	Format     Format
	Compressed bool
}

// ParseName parses a recording file name (directories are ignored).
func ParseName(path string) (Meta, error) {
	m := nameRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return Meta{}, fmt.Errorf("%w: %s", ErrBadName, filepath.Base(path))
	}
	kind, ok := models.ParseExercise(m[1])
	if !ok {
		return Meta{}, fmt.Errorf("%w: unknown exercise %q", ErrBadName, m[1])
	}
	date, err := time.Parse("20060102", m[2])
	if err != nil {
		return Meta{}, fmt.Errorf("%w: bad date %q", ErrBadName, m[2])
	}
	id, err := uuid.Parse(m[3])
	if err != nil {
		return Meta{}, fmt.Errorf("%w: bad id %q", ErrBadName, m[3])
	}
	return Meta{
		Exercise:   kind,
		Date:       date,
		ID:         id,
		Format:     Format(m[4]),
		Compressed: m[5] != "",
	}, nil
}

// Recording is a parsed recording file.
type Recording struct {
	Path string
	Meta
	Frames []pose.Frame
}

// Load reads and parses the recording at path.
func Load(path string) (*Recording, error) {
	meta, err := ParseName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if meta.Compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var frames []pose.Frame
	switch meta.Format {
	case FormatJSONL:
		frames, err = ParseJSONL(r)
	case FormatCSV:
		frames, err = ParseCSV(r, meta.Date)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &Recording{Path: path, Meta: meta, Frames: frames}, nil
}

// Find returns every recording under dir, sorted by path. Files whose names
// do not parse are skipped.
func Find(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, err := ParseName(path); err == nil {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ParseJSONL reads one frame per line. Blank lines are skipped.
func ParseJSONL(r io.Reader) ([]pose.Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var frames []pose.Frame
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var f pose.Frame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	return frames, scanner.Err()
}

var csvHeader = []string{"frame_ms", "joint", "x", "y", "confidence"}

// ParseCSV reads joint rows and groups consecutive rows with the same
// frame_ms into one frame. Frame times are start plus frame_ms.
func ParseCSV(r io.Reader, start time.Time) ([]pose.Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	for i, h := range csvHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != h {
			return nil, fmt.Errorf("unexpected header %v, want %v", header, csvHeader)
		}
	}

	var frames []pose.Frame
	var current *pose.Frame
	lastMs := int64(-1)
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ms, joint, lm, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if current == nil || ms != lastMs {
			if ms < lastMs {
				return nil, fmt.Errorf("row %d: frame_ms %d goes backwards", row, ms)
			}
			frames = append(frames, pose.Frame{Time: start.Add(time.Duration(ms) * time.Millisecond)})
			current = &frames[len(frames)-1]
			lastMs = ms
		}
		current.Landmarks[joint] = lm
	}
	return frames, nil
}

func parseRow(rec []string) (int64, pose.Joint, pose.Landmark, error) {
	ms, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil || ms < 0 {
		return 0, 0, pose.Landmark{}, fmt.Errorf("bad frame_ms %q", rec[0])
	}
	id, err := strconv.Atoi(rec[1])
	if err != nil {
		return 0, 0, pose.Landmark{}, fmt.Errorf("bad joint %q", rec[1])
	}
	joint := pose.Joint(id)
	if !joint.Valid() {
		return 0, 0, pose.Landmark{}, fmt.Errorf("%w: %d", pose.ErrJointOutOfRange, id)
	}
	var vals [3]float64
	for i := range vals {
		vals[i], err = strconv.ParseFloat(rec[2+i], 64)
		if err != nil || math.IsNaN(vals[i]) || math.IsInf(vals[i], 0) {
			return 0, 0, pose.Landmark{}, fmt.Errorf("bad %s %q", csvHeader[2+i], rec[2+i])
		}
	}
	return ms, joint, pose.Landmark{X: vals[0], Y: vals[1], Confidence: vals[2]}, nil
}

// WriteJSONL writes frames in the JSON Lines format read by ParseJSONL.
func WriteJSONL(w io.Writer, frames []pose.Frame) error {
	enc := json.NewEncoder(w)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}
