// Package session owns the per-user engine state: one exercise machine and
// one score aggregator per session, kept in a registry keyed by UUID.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/calibration"
	"github.com/claude/repcoach/internal/exercise"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
	"github.com/claude/repcoach/internal/posture"
	"github.com/claude/repcoach/internal/scoring"
)

var (
	ErrSessionEnded = errors.New("session ended")
	ErrNotFound     = errors.New("session not found")
)

// Recorder receives engine activity for metrics. All methods must be safe
// for concurrent use.
type Recorder interface {
	FrameProcessed(kind models.Exercise)
	RepCompleted(ev models.RepEvent)
	CycleAbandoned(kind models.Exercise)
	SessionStarted(kind models.Exercise)
	SessionEnded(kind models.Exercise)
}

type nopRecorder struct{}

func (nopRecorder) FrameProcessed(models.Exercise) {}
func (nopRecorder) RepCompleted(models.RepEvent)   {}
func (nopRecorder) CycleAbandoned(models.Exercise) {}
func (nopRecorder) SessionStarted(models.Exercise) {}
func (nopRecorder) SessionEnded(models.Exercise)   {}

// Step is the result of processing one frame.
type Step struct {
	Event       *models.RepEvent   `json:"event,omitempty"`
	Totals      models.Totals      `json:"totals"`
	Phase       exercise.Phase     `json:"phase"`
	Calibration calibration.Status `json:"calibration"`
	Live        []posture.Fault    `json:"live"`
	Abandoned   bool               `json:"abandoned,omitempty"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID          uuid.UUID          `json:"id"`
	UserID      int                `json:"user_id"`
	Exercise    models.Exercise    `json:"exercise"`
	StartedAt   time.Time          `json:"started_at"`
	Phase       exercise.Phase     `json:"phase"`
	Totals      models.Totals      `json:"totals"`
	Calibration calibration.Status `json:"calibration"`
	Ended       bool               `json:"ended"`
}

// Session processes frames for one user and one exercise. Frames are
// handled one at a time; a frame is fully processed before the next one is
// accepted.
type Session struct {
	ID        uuid.UUID
	UserID    int
	Exercise  models.Exercise
	StartedAt time.Time

	mu         sync.Mutex
	machine    exercise.Machine
	agg        *scoring.Aggregator
	rec        Recorder
	ended      bool
	lastActive time.Time
}

// New creates a session with its own machine. Configuration errors are
// returned before any frame is processed.
func New(userID int, kind models.Exercise, cfg exercise.Config, log *slog.Logger, rec Recorder) (*Session, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	id := uuid.New()
	m, err := exercise.New(kind, cfg, exercise.WithLogger(log.With("session", id)))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	now := time.Now().UTC()
	return &Session{
		ID:         id,
		UserID:     userID,
		Exercise:   kind,
		StartedAt:  now,
		machine:    m,
		agg:        scoring.NewAggregator(),
		rec:        rec,
		lastActive: now,
	}, nil
}

// Process feeds one frame through the machine. The only error is
// ErrSessionEnded.
func (s *Session) Process(f pose.Frame) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Step{}, ErrSessionEnded
	}

	s.lastActive = time.Now().UTC()
	abandoned := s.machine.Abandoned()
	ev, ok := s.machine.Update(f)
	s.rec.FrameProcessed(s.Exercise)

	step := Step{
		Phase:       s.machine.Phase(),
		Calibration: s.machine.Calibration(),
		Live:        s.machine.Live().Faults,
	}
	if step.Live == nil {
		step.Live = []posture.Fault{}
	}
	if ok {
		step.Totals = s.agg.Add(ev)
		step.Event = &ev
		s.rec.RepCompleted(ev)
	} else {
		step.Totals = s.agg.Snapshot()
	}
	if s.machine.Abandoned() > abandoned {
		step.Abandoned = true
		s.rec.CycleAbandoned(s.Exercise)
	}
	return step, nil
}

// End cancels any in-progress cycle without emitting an event and returns
// the final totals.
func (s *Session) End() (models.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.agg.Snapshot(), ErrSessionEnded
	}
	s.machine.Reset()
	s.ended = true
	s.rec.SessionEnded(s.Exercise)
	return s.agg.Snapshot(), nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:          s.ID,
		UserID:      s.UserID,
		Exercise:    s.Exercise,
		StartedAt:   s.StartedAt,
		Phase:       s.machine.Phase(),
		Totals:      s.agg.Snapshot(),
		Calibration: s.machine.Calibration(),
		Ended:       s.ended,
	}
}

// LastActive is when the session last received a frame, or its start time.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Calibration returns the calibration status.
func (s *Session) Calibration() calibration.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Calibration()
}

// Manager is the registry of active sessions. Sessions never share state;
// the registry lock only guards the map.
type Manager struct {
	cfg exercise.Config
	log *slog.Logger
	rec Recorder

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager validates cfg once so that every later Start fails only for
// an unknown exercise.
func NewManager(cfg exercise.Config, log *slog.Logger, rec Recorder) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		rec:      rec,
		sessions: make(map[uuid.UUID]*Session),
	}, nil
}

// Config returns the engine configuration sessions are created with.
func (m *Manager) Config() exercise.Config { return m.cfg }

// Start creates and registers a new session.
func (m *Manager) Start(userID int, kind models.Exercise) (*Session, error) {
	return m.StartWithConfig(userID, kind, m.cfg)
}

// StartWithConfig is Start with per-session engine thresholds, such as a
// chosen jump height. cfg is validated before the session is registered.
func (m *Manager) StartWithConfig(userID int, kind models.Exercise, cfg exercise.Config) (*Session, error) {
	s, err := New(userID, kind, cfg, m.log, m.rec)
	if err != nil {
		return nil, fmt.Errorf("starting %s session: %w", kind, err)
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.rec.SessionStarted(kind)
	m.log.Info("session started", "session", s.ID, "user", userID, "exercise", kind)
	return s, nil
}

// Get returns the active session with id.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End ends the session and removes it from the registry.
func (m *Manager) End(id uuid.UUID) (*Session, models.Totals, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil, models.Totals{}, ErrNotFound
	}
	totals, err := s.End()
	if err != nil {
		return s, totals, err
	}
	m.log.Info("session ended", "session", id, "reps", totals.Reps, "points", totals.Points)
	return s, totals, nil
}

// Expired is a session ended for inactivity.
type Expired struct {
	Session *Session
	Totals  models.Totals
}

// ExpireIdle ends and unregisters every session with no frame since cutoff.
func (m *Manager) ExpireIdle(cutoff time.Time) []Expired {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	out := make([]Expired, 0, len(idle))
	for _, s := range idle {
		totals, err := s.End()
		if err != nil {
			continue
		}
		m.log.Info("session expired", "session", s.ID, "idle_since", s.LastActive(), "reps", totals.Reps)
		out = append(out, Expired{Session: s, Totals: totals})
	}
	return out
}

// Active returns snapshots of every registered session, oldest first.
func (m *Manager) Active() []Snapshot {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
