package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duydn-dev/identityserver/pkg/keys"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testPair builds a record with opaque key material; the store never
// inspects it.
func testPair(clientID string, createdAt time.Time) *keys.ClientKeyPair {
	return &keys.ClientKeyPair{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		PrivateKey: "priv-" + uuid.NewString(),
		PublicKey:  "pub-" + uuid.NewString(),
		KeySize:    2048,
		CreatedAt:  createdAt,
		IsActive:   true,
	}
}

func TestRotateFirstKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	pair := testPair("client-1", time.Now().UTC())
	prev, err := store.Rotate(ctx, pair)
	require.NoError(t, err)
	assert.Nil(t, prev)

	got, err := store.GetActiveByClientID(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, pair.ID, got.ID)
	assert.True(t, got.IsActive)
	assert.Equal(t, pair.PublicKey, got.PublicKey)
}

func TestRotateLeavesOneActive(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	first := testPair("client-1", base)
	second := testPair("client-1", base.Add(time.Second))

	_, err := store.Rotate(ctx, first)
	require.NoError(t, err)

	prev, err := store.Rotate(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, first.ID, prev.ID)
	assert.True(t, prev.IsActive, "returned pair reflects its state before rotation")

	active, err := store.GetActiveByClientID(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	// The old pair stays in the store, just inactive.
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, p := range all {
		if p.ID == first.ID {
			assert.False(t, p.IsActive)
		}
	}
}

func TestGetActiveByPublicKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	pair := testPair("client-1", time.Now().UTC())
	_, err := store.Rotate(ctx, pair)
	require.NoError(t, err)

	got, err := store.GetActiveByPublicKey(ctx, pair.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, pair.ID, got.ID)

	_, err = store.GetActiveByPublicKey(ctx, "no-such-key")
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

func TestRotatedKeyNoLongerResolvesByPublicKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	first := testPair("client-1", base)
	_, err := store.Rotate(ctx, first)
	require.NoError(t, err)
	_, err = store.Rotate(ctx, testPair("client-1", base.Add(time.Second)))
	require.NoError(t, err)

	_, err = store.GetActiveByPublicKey(ctx, first.PublicKey)
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	pair := testPair("client-1", time.Now().UTC())
	_, err := store.Rotate(ctx, pair)
	require.NoError(t, err)

	got, err := store.Deactivate(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, pair.ID, got.ID)
	assert.False(t, got.IsActive)

	_, err = store.GetActiveByClientID(ctx, "client-1")
	assert.ErrorIs(t, err, keys.ErrNotFound)

	// The record is still there for history.
	hist, err := store.GetByClientID(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, hist.IsActive)
}

func TestDeactivateUnknownClient(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Deactivate(context.Background(), "nobody")
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	_, err := store.Rotate(ctx, testPair("client-1", base))
	require.NoError(t, err)
	second := testPair("client-1", base.Add(time.Second))
	_, err = store.Rotate(ctx, second)
	require.NoError(t, err)

	got, err := store.Delete(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = store.GetByClientID(ctx, "client-1")
	assert.ErrorIs(t, err, keys.ErrNotFound)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestExpiresAtRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	expiry := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Millisecond)
	pair := testPair("client-1", time.Now().UTC())
	pair.ExpiresAt = &expiry

	_, err := store.Rotate(ctx, pair)
	require.NoError(t, err)

	got, err := store.GetActiveByClientID(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expiry))
}

func TestListOrdersNewestFirst(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	_, err := store.Rotate(ctx, testPair("client-a", base))
	require.NoError(t, err)
	_, err = store.Rotate(ctx, testPair("client-b", base.Add(time.Second)))
	require.NoError(t, err)
	newest := testPair("client-c", base.Add(2*time.Second))
	_, err = store.Rotate(ctx, newest)
	require.NoError(t, err)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newest.ID, all[0].ID)
}
