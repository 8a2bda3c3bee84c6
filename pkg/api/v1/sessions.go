package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/duydn-dev/identityserver/pkg/logger"
	"github.com/duydn-dev/identityserver/pkg/sessions"
)

// SessionRoutes defines the routes for viewing and revoking logical user
// sessions.
type SessionRoutes struct {
	aggregator *sessions.Aggregator
}

// SessionRouter creates a new router for the session API.
func SessionRouter(aggregator *sessions.Aggregator) http.Handler {
	routes := SessionRoutes{aggregator: aggregator}

	r := chi.NewRouter()
	r.Get("/", routes.listSessions)
	r.Post("/{sessionId}/revoke", routes.revokeSession)
	r.Post("/revoke-all", routes.revokeAllSessions)
	return r
}

func (s *SessionRoutes) listSessions(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subjectId")
	if subjectID == "" {
		http.Error(w, "subjectId is required", http.StatusBadRequest)
		return
	}

	infos, err := s.aggregator.GetUserSessions(r.Context(), subjectID)
	if err != nil {
		logger.Errorf("Failed to list sessions for %s: %v", subjectID, err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []sessions.SessionInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		http.Error(w, "Failed to encode sessions", http.StatusInternalServerError)
		return
	}
}

func (s *SessionRoutes) revokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	found, err := s.aggregator.RevokeSession(r.Context(), sessionID)
	if err != nil {
		logger.Errorf("Failed to revoke session %s: %v", sessionID, err)
		http.Error(w, "Failed to revoke session", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type revokeAllSessionsRequest struct {
	SubjectID string `json:"subjectId"`
}

func (s *SessionRoutes) revokeAllSessions(w http.ResponseWriter, r *http.Request) {
	var req revokeAllSessionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" {
		http.Error(w, "subjectId is required", http.StatusBadRequest)
		return
	}

	count, err := s.aggregator.RevokeAllForUser(r.Context(), req.SubjectID)
	if err != nil {
		logger.Errorf("Failed to revoke sessions for %s: %v", req.SubjectID, err)
		http.Error(w, "Failed to revoke sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{"revoked": count}); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
