package server

import (
	"encoding/json"
	"net/http"
)

type profileRequest struct {
	DisplayName string `json:"display_name"`
	Age         *int   `json:"age"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Age != nil && (*req.Age < 5 || *req.Age > 120) {
		writeError(w, http.StatusBadRequest, "age must be between 5 and 120")
		return
	}
	uid := userIDFromContext(r)
	if err := s.db.UpdateUserProfile(r.Context(), uid, req.DisplayName, req.Age); err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	user, err := s.db.GetUser(r.Context(), uid)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetUserStats(r.Context(), userIDFromContext(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	days, err := s.db.GetDailyStats(r.Context(), userIDFromContext(r), queryInt(r, "days", 30))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.db.QueryImportLogs(r.Context(), userIDFromContext(r), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
