// Package v1 contains the route handlers for the admin and external APIs.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/duydn-dev/identityserver/pkg/keys"
	"github.com/duydn-dev/identityserver/pkg/logger"
)

// KeyRoutes defines the routes for client key pair administration.
type KeyRoutes struct {
	service *keys.Service
}

// KeyRouter creates a new router for the key administration API.
func KeyRouter(service *keys.Service) http.Handler {
	routes := KeyRoutes{service: service}

	r := chi.NewRouter()
	r.Get("/", routes.listKeys)
	r.Post("/", routes.generateKey)
	r.Get("/{clientId}/public", routes.getPublicKey)
	r.Post("/{clientId}/deactivate", routes.deactivateKey)
	r.Delete("/{clientId}", routes.deleteKey)
	return r
}

type generateKeyRequest struct {
	ClientID    string     `json:"clientId"`
	KeySize     int        `json:"keySize,omitempty"`
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// keyPairResponse is the admin view of a key pair. The private key is
// returned only from generation; listings omit it.
type keyPairResponse struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"clientId"`
	PublicKey   string     `json:"publicKey"`
	KeySize     int        `json:"keySize"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	IsActive    bool       `json:"isActive"`
	Description string     `json:"description,omitempty"`
	PrivateKey  string     `json:"privateKey,omitempty"`
}

func toKeyPairResponse(pair *keys.ClientKeyPair, includePrivate bool) keyPairResponse {
	resp := keyPairResponse{
		ID:          pair.ID,
		ClientID:    pair.ClientID,
		PublicKey:   pair.PublicKey,
		KeySize:     pair.KeySize,
		CreatedAt:   pair.CreatedAt,
		ExpiresAt:   pair.ExpiresAt,
		IsActive:    pair.IsActive,
		Description: pair.Description,
	}
	if includePrivate {
		resp.PrivateKey = pair.PrivateKey
	}
	return resp
}

func (k *KeyRoutes) generateKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}

	pair, err := k.service.Generate(r.Context(), req.ClientID, req.KeySize, req.Description, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, keys.ErrKeyGeneration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Errorf("Failed to generate key pair: %v", err)
		http.Error(w, "Failed to generate key pair", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	// The one place the private key leaves the service: the caller
	// distributes it to the client out of band.
	if err := json.NewEncoder(w).Encode(toKeyPairResponse(pair, true)); err != nil {
		http.Error(w, "Failed to encode key pair", http.StatusInternalServerError)
		return
	}
}

func (k *KeyRoutes) listKeys(w http.ResponseWriter, r *http.Request) {
	pairs, err := k.service.ListAll(r.Context())
	if err != nil {
		logger.Errorf("Failed to list key pairs: %v", err)
		http.Error(w, "Failed to list key pairs", http.StatusInternalServerError)
		return
	}

	resp := make([]keyPairResponse, 0, len(pairs))
	for _, pair := range pairs {
		resp = append(resp, toKeyPairResponse(pair, false))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode key pairs", http.StatusInternalServerError)
		return
	}
}

func (k *KeyRoutes) getPublicKey(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")

	publicKey, err := k.service.GetPublicKey(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, keys.ErrNotFound) {
			http.Error(w, "No active key for client", http.StatusNotFound)
			return
		}
		logger.Errorf("Failed to get public key for %s: %v", clientID, err)
		http.Error(w, "Failed to get public key", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"clientId":  clientID,
		"publicKey": publicKey,
	}); err != nil {
		http.Error(w, "Failed to encode public key", http.StatusInternalServerError)
		return
	}
}

func (k *KeyRoutes) deactivateKey(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")

	found, err := k.service.Deactivate(r.Context(), clientID)
	if err != nil {
		logger.Errorf("Failed to deactivate key for %s: %v", clientID, err)
		http.Error(w, "Failed to deactivate key", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "No key pair for client", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (k *KeyRoutes) deleteKey(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")

	found, err := k.service.Delete(r.Context(), clientID)
	if err != nil {
		logger.Errorf("Failed to delete key for %s: %v", clientID, err)
		http.Error(w, "Failed to delete key", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "No key pair for client", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
