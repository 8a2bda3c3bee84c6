// Package cache provides the Redis-backed fast lookup layer in front of
// the durable client key pair store.
//
// Entries are indexed in two independent keyspaces: by client ID and by a
// SHA-256 hash of the public key material. Both entries for a pair are
// written together and removed together; Invalidate derives both keys
// from the record so callers cannot forget one of them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duydn-dev/identityserver/pkg/keys"
)

// DefaultTTL is how long a cached key pair lives before the next lookup
// is forced back to the durable store.
const DefaultTTL = 24 * time.Hour

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

const (
	clientKeyPrefix = "client_key:"
	pubKeyPrefix    = "client_key:pubkey:"
)

// RedisCache implements keys.Cache on a Redis backend.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ keys.Cache = (*RedisCache)(nil)

// New creates a RedisCache with a pre-configured client. This is also the
// constructor used by tests with miniredis.
func New(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, ttl: DefaultTTL}
}

// NewFromURL connects to Redis using a redis:// URL and verifies the
// connection before returning.
func NewFromURL(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = DefaultDialTimeout
	opts.ReadTimeout = DefaultReadTimeout
	opts.WriteTimeout = DefaultWriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client), nil
}

// Close closes the Redis client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetByClientID returns the cached pair for a client, or (nil, nil) on a
// miss. Corrupt entries are treated as misses.
func (c *RedisCache) GetByClientID(ctx context.Context, clientID string) (*keys.ClientKeyPair, error) {
	pair, err := c.get(ctx, clientKey(clientID))
	if err != nil || pair == nil {
		return nil, err
	}
	if pair.ClientID != clientID {
		// Keyspace mix-up; force the caller back to the store.
		return nil, nil
	}
	return pair, nil
}

// GetByPublicKey returns the cached pair for the public key material, or
// (nil, nil) on a miss. The entry is addressed by a content hash, so the
// stored record's public key must still equal the probe: a stale entry
// left behind by a rotated key must not verify for another client.
func (c *RedisCache) GetByPublicKey(ctx context.Context, publicKey string) (*keys.ClientKeyPair, error) {
	pair, err := c.get(ctx, pubKey(publicKey))
	if err != nil || pair == nil {
		return nil, err
	}
	if pair.PublicKey != publicKey {
		return nil, nil
	}
	return pair, nil
}

// Set writes the pair into both keyspaces with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, pair *keys.ClientKeyPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal key pair: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, clientKey(pair.ClientID), data, c.ttl)
	pipe.Set(ctx, pubKey(pair.PublicKey), data, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache key pair: %w", err)
	}
	return nil
}

// Invalidate removes both cache entries for the pair.
func (c *RedisCache) Invalidate(ctx context.Context, pair *keys.ClientKeyPair) error {
	if err := c.client.Del(ctx, clientKey(pair.ClientID), pubKey(pair.PublicKey)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate key cache: %w", err)
	}
	return nil
}

func (c *RedisCache) get(ctx context.Context, key string) (*keys.ClientKeyPair, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read key cache: %w", err)
	}

	var pair keys.ClientKeyPair
	if err := json.Unmarshal(data, &pair); err != nil {
		// Corrupt entry; drop it and report a miss.
		_ = c.client.Del(ctx, key).Err()
		return nil, nil
	}
	return &pair, nil
}

func clientKey(clientID string) string {
	return clientKeyPrefix + clientID
}

func pubKey(publicKey string) string {
	sum := sha256.Sum256([]byte(publicKey))
	return pubKeyPrefix + hex.EncodeToString(sum[:])
}
