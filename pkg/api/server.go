// Package api contains the REST API for the identity trust service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/duydn-dev/identityserver/pkg/api/v1"
	"github.com/duydn-dev/identityserver/pkg/clientauth"
	"github.com/duydn-dev/identityserver/pkg/grants"
	"github.com/duydn-dev/identityserver/pkg/keys"
	"github.com/duydn-dev/identityserver/pkg/revocation"
	"github.com/duydn-dev/identityserver/pkg/sessions"
)

// Not sure if this value needs to be configurable.
const middlewareTimeout = 60 * time.Second

// Deps carries the services the API surfaces.
type Deps struct {
	Keys       *keys.Service
	Grants     grants.Store
	Sessions   *sessions.Aggregator
	Revocation *revocation.Coordinator
	ClientAuth *clientauth.Authenticator
}

// NewRouter builds the full API router: admin routes under /api/v1 and
// the client-authenticated external surface under /api/external.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/keys", v1.KeyRouter(d.Keys))
		r.Mount("/grants", v1.GrantRouter(d.Grants))
		r.Mount("/devicecodes", v1.DeviceCodeRouter(d.Grants))
		r.Mount("/sessions", v1.SessionRouter(d.Sessions))
		r.Mount("/revocation", v1.RevocationRouter(d.Revocation))
	})

	r.Route("/api/external", func(r chi.Router) {
		r.Use(d.ClientAuth.Middleware)
		r.Mount("/", v1.ExternalRouter())
	})

	return r
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}
