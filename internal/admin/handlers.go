package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fciannella/ace-versioning/internal/assignment"
	"github.com/fciannella/ace-versioning/internal/versioning"
)

const (
	defaultSampleCount = 1000
	maxSampleCount     = 1_000_000
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
}

type resolveResponse struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	VersionID   string `json:"version_id"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.CharacterID == "" {
		writeError(w, http.StatusBadRequest, "user_id and character_id are required")
		return
	}
	versionID, err := s.service.GetVersionForUser(r.Context(), req.UserID, req.CharacterID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		UserID:      req.UserID,
		CharacterID: req.CharacterID,
		VersionID:   versionID,
	})
}

type reassignRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	VersionID   string `json:"version_id"`
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.CharacterID == "" || req.VersionID == "" {
		writeError(w, http.StatusBadRequest, "user_id, character_id, and version_id are required")
		return
	}
	if err := s.service.Reassign(r.Context(), req.UserID, req.CharacterID, req.VersionID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		UserID:      req.UserID,
		CharacterID: req.CharacterID,
		VersionID:   req.VersionID,
	})
}

type logEventRequest struct {
	UserID      string         `json:"user_id"`
	CharacterID string         `json:"character_id"`
	EventType   string         `json:"event_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.CharacterID == "" || req.EventType == "" {
		writeError(w, http.StatusBadRequest, "user_id, character_id, and event_type are required")
		return
	}
	if err := s.service.LogEvent(r.Context(), req.UserID, req.CharacterID, req.EventType, req.Metadata); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "logged"})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	n, ok := sampleCount(w, r, "draws")
	if !ok {
		return
	}
	report, err := s.service.TestDistribution(r.Context(), r.PathValue("id"), n)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	n, ok := sampleCount(w, r, "users")
	if !ok {
		return
	}
	report, err := s.service.SimulateUserAssignments(r.Context(), r.PathValue("id"), n)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.aggregator.AssignmentAnalytics(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHealthReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.aggregator.HealthCheck(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func sampleCount(w http.ResponseWriter, r *http.Request, param string) (int, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return defaultSampleCount, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxSampleCount {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("%s must be a positive integer up to %d", param, maxSampleCount))
		return 0, false
	}
	return n, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, versioning.ErrNotFound), errors.Is(err, assignment.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, versioning.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(r.Context(), "admin request failed",
			"path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
