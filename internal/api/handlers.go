package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/hackathon-leaderboard/internal/admin"
	"github.com/terra-clan/hackathon-leaderboard/internal/livesync"
	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

const maxBodyBytes = 1 << 20

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps domain errors to status codes
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		validationErr *admin.ValidationError
		fetchErr      *livesync.FetchError
	)

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.Is(err, admin.ErrTeamNotFound), errors.Is(err, livesync.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "team not found")
	case errors.Is(err, admin.ErrBadgeNotFound):
		respondError(w, http.StatusNotFound, "badge_not_found", "badge not found")
	case errors.Is(err, admin.ErrAlreadyAwarded):
		respondError(w, http.StatusConflict, "already_awarded", "badge already awarded to team")
	case errors.As(err, &fetchErr):
		slog.Error("datastore unavailable", "action", action, "resource", fetchErr.Resource, "error", fetchErr.Err)
		respondError(w, http.StatusServiceUnavailable, "unavailable", "failed to "+action)
	case errors.Is(err, livesync.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, "unavailable", "leaderboard is shutting down")
	default:
		slog.Error("request failed", "action", action, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failures := s.health.CheckAll(r.Context())
	if len(failures) > 0 {
		checks := make(map[string]string, len(failures))
		for name, err := range failures {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
		}
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Leaderboard handlers

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.leaderboard.Snapshot())
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges := s.leaderboard.Snapshot().Badges
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"badges": badges,
		"total":  len(badges),
	})
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := s.teams.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get team")
		return
	}

	respondJSON(w, http.StatusOK, details)
}

// Admin handlers

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	team, err := s.admin.CreateTeam(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "create team")
		return
	}

	respondJSON(w, http.StatusCreated, team)
}

func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.admin.DeleteTeam(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "delete team")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "team deleted",
		"id":      id,
	})
}

func (s *Server) handleAddScore(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ev, err := s.admin.AddScore(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err, "add score")
		return
	}

	respondJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleAwardBadge(w http.ResponseWriter, r *http.Request) {
	var req models.AwardBadgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tb, err := s.admin.AwardBadge(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err, "award badge")
		return
	}

	respondJSON(w, http.StatusCreated, tb)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.leaderboard.Refetch(r.Context()); err != nil {
		respondServiceError(w, r, err, "refresh leaderboard")
		return
	}

	respondJSON(w, http.StatusOK, s.leaderboard.Snapshot())
}
