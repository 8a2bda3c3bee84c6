package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/duydn-dev/identityserver/pkg/grants"
	"github.com/duydn-dev/identityserver/pkg/logger"
)

// GrantRoutes defines the routes for browsing and deleting persisted
// grants.
type GrantRoutes struct {
	store grants.Store
}

// GrantRouter creates a new router for the persisted grant API.
func GrantRouter(store grants.Store) http.Handler {
	routes := GrantRoutes{store: store}

	r := chi.NewRouter()
	r.Get("/", routes.listGrants)
	r.Delete("/{key}", routes.revokeGrant)
	return r
}

type pagedGrantsResponse struct {
	Items []grants.PersistedGrant `json:"items"`
	Total int                     `json:"total"`
}

func (g *GrantRoutes) listGrants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := grants.GrantFilter{
		Page:      queryInt(q.Get("page"), 1),
		PageSize:  queryInt(q.Get("pageSize"), 25),
		SubjectID: q.Get("subjectId"),
		ClientID:  q.Get("clientId"),
		Type:      q.Get("type"),
	}

	items, total, err := g.store.ListGrants(r.Context(), filter)
	if err != nil {
		logger.Errorf("Failed to list grants: %v", err)
		http.Error(w, "Failed to list grants", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []grants.PersistedGrant{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pagedGrantsResponse{Items: items, Total: total}); err != nil {
		http.Error(w, "Failed to encode grants", http.StatusInternalServerError)
		return
	}
}

func (g *GrantRoutes) revokeGrant(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	found, err := g.store.RevokeByKey(r.Context(), key)
	if err != nil {
		logger.Errorf("Failed to revoke grant: %v", err)
		http.Error(w, "Failed to revoke grant", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Grant not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses a query parameter as a positive integer, returning def
// when absent or invalid.
func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
