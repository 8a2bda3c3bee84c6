package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/duydn-dev/identityserver/pkg/clientauth"
)

// ExternalRouter creates the router for the external client surface.
// Every route here sits behind the client authentication middleware.
func ExternalRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/ping", pingExternal)
	r.Post("/ping", pingExternal)
	return r
}

// pingExternal echoes the authenticated client identity so external
// integrations can verify their signing setup.
func pingExternal(w http.ResponseWriter, r *http.Request) {
	id, ok := clientauth.IdentityFromContext(r.Context())
	if !ok {
		// The middleware guarantees an identity; reaching here means the
		// route was mounted without it.
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(id); err != nil {
		http.Error(w, "Failed to encode identity", http.StatusInternalServerError)
		return
	}
}
