package clientauth

import (
	"context"
	"encoding/json"
	"net/http"
)

// Identity is the authenticated external client attached to the request
// context on success.
type Identity struct {
	ClientID string `json:"clientId"`
	Scope    string `json:"scope"`
	Method   Method `json:"method"`
}

type contextKey struct{}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware authenticates every request through AuthenticateRequest,
// attaching the identity to the context on success and writing a 401
// JSON rejection otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := a.AuthenticateRequest(r)
		if !res.Authenticated {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": string(res.Reason)})
			return
		}

		ctx := WithIdentity(r.Context(), Identity{
			ClientID: res.ClientID,
			Scope:    res.Scope,
			Method:   res.Method,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
