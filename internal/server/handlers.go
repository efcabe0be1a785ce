package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/exercise"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/pose"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

// maxFramesPerRequest bounds one POST to roughly a minute of 30 fps video.
const maxFramesPerRequest = 2000

type startRequest struct {
	Exercise string `json:"exercise"`
	// RecordingID marks a replayed recording. Each recording can be
	// replayed into at most one session.
	RecordingID *uuid.UUID `json:"recording_id,omitempty"`
	// JumpHeight selects the jump thresholds: low, medium or high.
	// Empty keeps the server's configured jump.
	JumpHeight string `json:"jump_height,omitempty"`
}

type framesRequest struct {
	Frames []pose.Frame `json:"frames"`
}

type framesResponse struct {
	SessionID uuid.UUID         `json:"session_id"`
	Steps     []session.Step    `json:"steps"`
	Events    []models.RepEvent `json:"events"`
	Totals    models.Totals     `json:"totals"`
}

type endResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	Status    string        `json:"status"`
	Totals    models.Totals `json:"totals"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	kind, ok := models.ParseExercise(req.Exercise)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown exercise "+strconv.Quote(req.Exercise))
		return
	}

	cfg := s.sessions.Config()
	if req.JumpHeight != "" {
		jc, ok := exercise.JumpHeight(req.JumpHeight)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown jump_height "+strconv.Quote(req.JumpHeight))
			return
		}
		cfg.Jump = jc
	}

	uid := userIDFromContext(r)
	sess, err := s.sessions.StartWithConfig(uid, kind, cfg)
	if err != nil {
		s.log.Error("start session", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap := sess.Snapshot()
	row := models.SessionRow{
		ID:          snap.ID,
		UserID:      uid,
		Exercise:    kind,
		Status:      models.StatusActive,
		Source:      "live",
		RecordingID: req.RecordingID,
		StartedAt:   snap.StartedAt,
	}
	if req.RecordingID != nil {
		row.Source = "replay"
	}
	created, err := s.db.CreateSession(r.Context(), row)
	if err != nil || !created {
		_, _, _ = s.sessions.End(snap.ID)
	}
	if err != nil {
		s.log.Error("persist session", "session", snap.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !created {
		writeError(w, http.StatusConflict, "recording "+req.RecordingID.String()+" was already replayed")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	var req framesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Frames) > maxFramesPerRequest {
		writeError(w, http.StatusBadRequest, "too many frames in one request")
		return
	}

	resp := framesResponse{
		SessionID: sess.ID,
		Steps:     make([]session.Step, 0, len(req.Frames)),
		Events:    []models.RepEvent{},
	}
	for _, f := range req.Frames {
		step, err := s.process(r.Context(), sess, f)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		resp.Steps = append(resp.Steps, step)
		if step.Event != nil {
			resp.Events = append(resp.Events, *step.Event)
		}
	}
	resp.Totals = sess.Snapshot().Totals
	writeJSON(w, http.StatusOK, resp)
}

// process runs one frame through the session and persists what it
// produced. Storage failures are logged; the engine state is authoritative
// while the session is live and the totals are written again on end.
func (s *Server) process(ctx context.Context, sess *session.Session, f pose.Frame) (session.Step, error) {
	wasReady := sess.Calibration().Ready
	step, err := sess.Process(f)
	if err != nil {
		return step, err
	}
	if !wasReady && step.Calibration.Ready && step.Calibration.Baseline != nil {
		if err := s.db.SetSessionBaseline(ctx, sess.ID, step.Calibration.Baseline); err != nil {
			s.log.Warn("persist baseline", "session", sess.ID, "error", err)
		}
	}
	if step.Event != nil {
		if _, err := s.db.InsertRepEvent(ctx, models.NewRepRow(sess.ID, sess.UserID, *step.Event)); err != nil {
			s.log.Warn("persist rep", "session", sess.ID, "rep", step.Event.Number, "error", err)
		}
		if err := s.db.UpdateSessionTotals(ctx, sess.ID, step.Totals); err != nil {
			s.log.Warn("persist totals", "session", sess.ID, "error", err)
		}
	}
	return step, nil
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	status := models.StatusCompleted
	if r.URL.Query().Get("status") == models.StatusCancelled {
		status = models.StatusCancelled
	}
	_, totals, err := s.sessions.End(sess.ID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if err := s.db.EndSession(r.Context(), sess.ID, status, totals, time.Now().UTC()); err != nil {
		s.log.Error("persist session end", "session", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, endResponse{SessionID: sess.ID, Status: status, Totals: totals})
}

// handleGetSession returns the live snapshot for an active session and
// the stored row once it has ended.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	uid := userIDFromContext(r)
	if sess, err := s.sessions.Get(id); err == nil && sess.UserID == uid {
		writeJSON(w, http.StatusOK, sess.Snapshot())
		return
	}
	row, err := s.db.GetSession(r.Context(), id, uid)
	if err != nil {
		writeStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Calibration())
}

func (s *Server) handleSessionReps(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	reps, err := s.db.QuerySessionReps(r.Context(), id, userIDFromContext(r))
	if err != nil {
		writeStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var kind models.Exercise
	if v := r.URL.Query().Get("exercise"); v != "" {
		var ok bool
		if kind, ok = models.ParseExercise(v); !ok {
			writeError(w, http.StatusBadRequest, "unknown exercise "+strconv.Quote(v))
			return
		}
	}
	rows, err := s.db.QueryRecentSessions(r.Context(), userIDFromContext(r), kind, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("exercise")
	kind, ok := models.ParseExercise(v)
	if !ok {
		writeError(w, http.StatusBadRequest, "exercise parameter required (jump, squat or pushup)")
		return
	}
	entries, err := s.db.GetLeaderboard(r.Context(), kind, queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ownedSession resolves {id} to an active session owned by the caller.
// Other users' sessions are reported as not found.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil || sess.UserID != userIDFromContext(r) {
		writeError(w, http.StatusNotFound, "no active session "+id.String())
		return nil, false
	}
	return sess, true
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exercise.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
