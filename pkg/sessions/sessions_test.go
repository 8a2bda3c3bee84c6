package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duydn-dev/identityserver/pkg/grants"
)

// memStore is an in-memory GrantStore keeping grants newest first, the
// same order the real store returns them.
type memStore struct {
	grants []grants.PersistedGrant
	err    error
}

func (m *memStore) ListGrantsBySubject(_ context.Context, subjectID string) ([]grants.PersistedGrant, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []grants.PersistedGrant
	for _, g := range m.grants {
		if g.SubjectID == subjectID {
			result = append(result, g)
		}
	}
	return result, nil
}

func (m *memStore) RevokeBySession(_ context.Context, sessionID string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.removeIf(func(g grants.PersistedGrant) bool { return g.SessionID == sessionID }), nil
}

func (m *memStore) RevokeBySubject(_ context.Context, subjectID string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.removeIf(func(g grants.PersistedGrant) bool { return g.SubjectID == subjectID }), nil
}

func (m *memStore) removeIf(match func(grants.PersistedGrant) bool) int {
	var kept []grants.PersistedGrant
	removed := 0
	for _, g := range m.grants {
		if match(g) {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	m.grants = kept
	return removed
}

func grant(key, clientID, subjectID, sessionID string, createdAt time.Time) grants.PersistedGrant {
	return grants.PersistedGrant{
		Key:          key,
		Type:         grants.TypeRefreshToken,
		ClientID:     clientID,
		SubjectID:    subjectID,
		SessionID:    sessionID,
		CreationTime: createdAt,
	}
}

func TestGetUserSessionsGroupsBySessionID(t *testing.T) {
	t.Parallel()

	base := time.Now().UTC()
	store := &memStore{grants: []grants.PersistedGrant{
		// Newest first, as the store returns them.
		grant("g5", "app", "alice", "s2", base.Add(4*time.Second)),
		grant("g4", "app", "alice", "s1", base.Add(3*time.Second)),
		grant("g3", "app", "alice", "s1", base.Add(2*time.Second)),
		grant("g2", "app", "alice", "s1", base.Add(time.Second)),
		grant("g1", "app", "alice", "s1", base),
	}}

	sessions, err := NewAggregator(store, nil).GetUserSessions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// The newest grant in each session is the representative.
	assert.Equal(t, "s2", sessions[0].SessionID)
	assert.True(t, sessions[0].CreationTime.Equal(base.Add(4*time.Second)))
	assert.Equal(t, "s1", sessions[1].SessionID)
	assert.True(t, sessions[1].CreationTime.Equal(base.Add(3*time.Second)))
}

func TestGetUserSessionsKeylessFallback(t *testing.T) {
	t.Parallel()

	base := time.Now().UTC()
	store := &memStore{grants: []grants.PersistedGrant{
		grant("g2", "app", "alice", "", base.Add(time.Second)),
		grant("g1", "app", "alice", "", base),
	}}

	sessions, err := NewAggregator(store, nil).GetUserSessions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Without a session ID each grant is its own session, keyed by grant
	// key.
	assert.Equal(t, "g2", sessions[0].SessionID)
	assert.Equal(t, "g1", sessions[1].SessionID)
}

func TestGetUserSessionsEmpty(t *testing.T) {
	t.Parallel()

	sessions, err := NewAggregator(&memStore{}, nil).GetUserSessions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestGetUserSessionsStoreError(t *testing.T) {
	t.Parallel()

	store := &memStore{err: errors.New("disk gone")}
	_, err := NewAggregator(store, nil).GetUserSessions(context.Background(), "alice")
	assert.Error(t, err)
}

func TestRevokeSessionRemovesAllMembers(t *testing.T) {
	t.Parallel()

	base := time.Now().UTC()
	store := &memStore{grants: []grants.PersistedGrant{
		grant("g3", "app", "alice", "s1", base.Add(2*time.Second)),
		grant("g2", "app", "alice", "s1", base.Add(time.Second)),
		grant("g1", "app", "alice", "s1", base),
		grant("g0", "app", "alice", "s2", base),
	}}
	agg := NewAggregator(store, nil)

	found, err := agg.RevokeSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, found)

	sessions, err := agg.GetUserSessions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s2", sessions[0].SessionID)

	// Already gone; reported as not found, not an error.
	found, err = agg.RevokeSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRevokeAllForUser(t *testing.T) {
	t.Parallel()

	base := time.Now().UTC()
	store := &memStore{grants: []grants.PersistedGrant{
		grant("g2", "app", "alice", "s1", base.Add(time.Second)),
		grant("g1", "app", "alice", "s2", base),
		grant("g0", "app", "bob", "s3", base),
	}}
	agg := NewAggregator(store, nil)

	count, err := agg.RevokeAllForUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	sessions, err := agg.GetUserSessions(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
