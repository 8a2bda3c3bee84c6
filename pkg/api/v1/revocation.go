package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/duydn-dev/identityserver/pkg/logger"
	"github.com/duydn-dev/identityserver/pkg/revocation"
)

// RevocationRoutes defines the admin token revocation routes.
type RevocationRoutes struct {
	coordinator *revocation.Coordinator
}

// RevocationRouter creates a new router for the revocation API.
func RevocationRouter(coordinator *revocation.Coordinator) http.Handler {
	routes := RevocationRoutes{coordinator: coordinator}

	r := chi.NewRouter()
	r.Post("/by-subject-client", routes.revokeBySubjectClient)
	r.Post("/by-key", routes.revokeByKey)
	return r
}

type revokeBySubjectClientRequest struct {
	SubjectID string `json:"subjectId"`
	ClientID  string `json:"clientId"`
}

func (rr *RevocationRoutes) revokeBySubjectClient(w http.ResponseWriter, r *http.Request) {
	var req revokeBySubjectClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" || req.ClientID == "" {
		http.Error(w, "subjectId and clientId are required", http.StatusBadRequest)
		return
	}

	count, err := rr.coordinator.RevokeBySubjectAndClient(r.Context(), req.SubjectID, req.ClientID)
	if err != nil {
		logger.Errorf("Failed to revoke grants: %v", err)
		http.Error(w, "Failed to revoke grants", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{"revoked": count}); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

type revokeByKeyRequest struct {
	Key string `json:"key"`
}

func (rr *RevocationRoutes) revokeByKey(w http.ResponseWriter, r *http.Request) {
	var req revokeByKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	found, err := rr.coordinator.RevokeByKey(r.Context(), req.Key)
	if err != nil {
		logger.Errorf("Failed to revoke grant: %v", err)
		http.Error(w, "Failed to revoke grant", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Grant not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]bool{"revoked": true}); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
