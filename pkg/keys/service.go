package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duydn-dev/identityserver/pkg/logger"
)

// Service owns the client key pair lifecycle: generation with rotation,
// cache-first lookups, deactivation and deletion. The cache is optional;
// with a nil cache every lookup goes to the durable store.
//
// Cache invalidation is synchronous with the write that causes staleness.
// A rotation, deactivation or deletion does not return until the stale
// cache entries are gone, so a revoked key cannot keep verifying out of a
// warm cache.
type Service struct {
	store Store
	cache Cache
	log   *slog.Logger
}

// NewService creates a key pair service over the given store and cache.
// cache may be nil. If log is nil the package logger is used.
func NewService(store Store, cache Cache, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Get()
	}
	return &Service{store: store, cache: cache, log: log}
}

// Generate creates a fresh RSA key pair for the client, deactivating any
// prior active pair. The previous pair is kept in the store for history.
// keySize 0 means DefaultKeySize.
func (s *Service) Generate(
	ctx context.Context, clientID string, keySize int, description string, expiresAt *time.Time,
) (*ClientKeyPair, error) {
	pair, err := NewKeyPair(clientID, keySize, description, expiresAt)
	if err != nil {
		return nil, err
	}

	prev, err := s.store.Rotate(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("rotating key pair for client %q: %w", clientID, err)
	}

	if prev != nil {
		if err := s.invalidate(ctx, prev); err != nil {
			return nil, err
		}
	}
	s.cacheSet(ctx, pair)

	s.log.Info("generated new RSA key pair",
		"client_id", clientID, "key_size", pair.KeySize, "rotated", prev != nil)
	return pair, nil
}

// GetActiveByClientID returns the active, non-expired pair for a client,
// or ErrNotFound. The cache is consulted first.
func (s *Service) GetActiveByClientID(ctx context.Context, clientID string) (*ClientKeyPair, error) {
	if cached := s.cacheGet(ctx, clientID); cached != nil {
		if cached.IsActive && !cached.Expired(time.Now()) {
			s.log.Debug("client key found in cache", "client_id", clientID)
			return cached, nil
		}
	}

	pair, err := s.store.GetActiveByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if pair.Expired(time.Now()) {
		s.log.Warn("client key has expired", "client_id", clientID)
		return nil, ErrNotFound
	}

	s.cacheSet(ctx, pair)
	return pair, nil
}

// GetActiveByPublicKey is the reverse lookup used by the
// public-key-as-bearer authentication mode. Same expiry semantics as
// GetActiveByClientID.
func (s *Service) GetActiveByPublicKey(ctx context.Context, publicKey string) (*ClientKeyPair, error) {
	if s.cache != nil {
		cached, err := s.cache.GetByPublicKey(ctx, publicKey)
		if err != nil {
			s.log.Warn("key cache read failed", "error", err)
		} else if cached != nil && cached.IsActive && !cached.Expired(time.Now()) {
			s.log.Debug("client key found in cache by public key", "client_id", cached.ClientID)
			return cached, nil
		}
	}

	pair, err := s.store.GetActiveByPublicKey(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if pair.Expired(time.Now()) {
		s.log.Warn("client key found by public key but expired", "client_id", pair.ClientID)
		return nil, ErrNotFound
	}

	s.cacheSet(ctx, pair)
	return pair, nil
}

// Deactivate marks the client's key pairs inactive. Returns false if the
// client has no key pairs at all.
func (s *Service) Deactivate(ctx context.Context, clientID string) (bool, error) {
	pair, err := s.store.Deactivate(ctx, clientID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deactivating key for client %q: %w", clientID, err)
	}

	if err := s.invalidate(ctx, pair); err != nil {
		return false, err
	}
	s.log.Info("deactivated key pair", "client_id", clientID)
	return true, nil
}

// Delete hard-deletes the client's key pairs, history included. Returns
// false if the client has none.
func (s *Service) Delete(ctx context.Context, clientID string) (bool, error) {
	pair, err := s.store.Delete(ctx, clientID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting key for client %q: %w", clientID, err)
	}

	if err := s.invalidate(ctx, pair); err != nil {
		return false, err
	}
	s.log.Info("deleted key pair", "client_id", clientID)
	return true, nil
}

// GetPublicKey returns the active pair's public key material for a client.
func (s *Service) GetPublicKey(ctx context.Context, clientID string) (string, error) {
	pair, err := s.GetActiveByClientID(ctx, clientID)
	if err != nil {
		return "", err
	}
	return pair.PublicKey, nil
}

// ListAll returns every stored key pair, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*ClientKeyPair, error) {
	return s.store.List(ctx)
}

// cacheGet reads the by-client-ID cache entry, treating errors and
// corrupt entries as misses.
func (s *Service) cacheGet(ctx context.Context, clientID string) *ClientKeyPair {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetByClientID(ctx, clientID)
	if err != nil {
		s.log.Warn("key cache read failed", "client_id", clientID, "error", err)
		return nil
	}
	return cached
}

// cacheSet populates both cache keyspaces; failures are logged, not
// fatal, since the durable store remains authoritative.
func (s *Service) cacheSet(ctx context.Context, pair *ClientKeyPair) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, pair); err != nil {
		s.log.Warn("key cache write failed", "client_id", pair.ClientID, "error", err)
	}
}

// invalidate removes both cache entries for the pair. Errors propagate:
// returning with a stale entry still present would let a revoked key keep
// verifying until the TTL runs out.
func (s *Service) invalidate(ctx context.Context, pair *ClientKeyPair) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, pair); err != nil {
		return fmt.Errorf("invalidating key cache for client %q: %w", pair.ClientID, err)
	}
	s.log.Debug("key cache invalidated", "client_id", pair.ClientID)
	return nil
}
