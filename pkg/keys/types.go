// Package keys manages the RSA key pairs issued to external clients for
// request authentication. Each client has at most one active pair at a
// time; older pairs are deactivated on rotation but kept for history.
package keys

import (
	"context"
	"errors"
	"time"
)

// ClientKeyPair is the durable record of an RSA key pair issued to an
// external client. Key material is stored base64-encoded: the private key
// as PKCS#8 DER, the public key as PKCS#1 DER.
type ClientKeyPair struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"clientId"`
	PrivateKey  string     `json:"privateKey"`
	PublicKey   string     `json:"publicKey"`
	KeySize     int        `json:"keySize"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	IsActive    bool       `json:"isActive"`
	Description string     `json:"description,omitempty"`
}

// Expired reports whether the pair has an expiry set and it has passed.
// Expiry is checked at lookup time; there is no background sweep.
func (k *ClientKeyPair) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

var (
	// ErrNotFound is returned when no matching key pair exists.
	ErrNotFound = errors.New("client key pair not found")

	// ErrKeyGeneration is returned when a key pair cannot be created,
	// e.g. for an unsupported key size.
	ErrKeyGeneration = errors.New("key pair generation failed")
)

// Store is the durable backing store for client key pairs.
type Store interface {
	// Rotate deactivates any active pairs for the new pair's client and
	// inserts the new pair, all in one transaction. It returns the
	// previously active pair, or nil if the client had none.
	Rotate(ctx context.Context, pair *ClientKeyPair) (*ClientKeyPair, error)
	// GetActiveByClientID returns the active pair for a client.
	// Expiry is not applied here; callers check it at use time.
	GetActiveByClientID(ctx context.Context, clientID string) (*ClientKeyPair, error)
	// GetActiveByPublicKey is the reverse lookup by public key material.
	GetActiveByPublicKey(ctx context.Context, publicKey string) (*ClientKeyPair, error)
	// GetByClientID returns the newest pair for a client regardless of
	// activation state.
	GetByClientID(ctx context.Context, clientID string) (*ClientKeyPair, error)
	// Deactivate marks every pair for the client inactive and returns the
	// newest record.
	Deactivate(ctx context.Context, clientID string) (*ClientKeyPair, error)
	// Delete removes all pairs for the client, returning the newest record
	// that was removed.
	Delete(ctx context.Context, clientID string) (*ClientKeyPair, error)
	// List returns all pairs ordered by creation time descending.
	List(ctx context.Context) ([]*ClientKeyPair, error)
	// Close releases any resources held by the store.
	Close() error
}

// Cache is the fast lookup layer in front of the Store. Implementations
// index entries both by client ID and by a hash of the public key
// material; Invalidate removes both entries for a pair. Lookups return
// (nil, nil) on a miss.
type Cache interface {
	GetByClientID(ctx context.Context, clientID string) (*ClientKeyPair, error)
	GetByPublicKey(ctx context.Context, publicKey string) (*ClientKeyPair, error)
	Set(ctx context.Context, pair *ClientKeyPair) error
	Invalidate(ctx context.Context, pair *ClientKeyPair) error
}
