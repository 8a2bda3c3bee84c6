package revocation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRevoker struct {
	keys map[string]struct{}
	err  error
}

func (s *stubRevoker) RevokeByKey(_ context.Context, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.keys[key]; !ok {
		return false, nil
	}
	delete(s.keys, key)
	return true, nil
}

func (s *stubRevoker) RevokeBySubjectAndClient(context.Context, string, string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n := len(s.keys)
	s.keys = map[string]struct{}{}
	return n, nil
}

func TestRevokeByKey(t *testing.T) {
	t.Parallel()

	store := &stubRevoker{keys: map[string]struct{}{"g1": {}}}
	c := NewCoordinator(store, nil)

	found, err := c.RevokeByKey(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = c.RevokeByKey(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRevokeBySubjectAndClient(t *testing.T) {
	t.Parallel()

	store := &stubRevoker{keys: map[string]struct{}{"g1": {}, "g2": {}}}
	c := NewCoordinator(store, nil)

	count, err := c.RevokeBySubjectAndClient(context.Background(), "alice", "app")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = c.RevokeBySubjectAndClient(context.Background(), "alice", "app")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestErrorsPropagate(t *testing.T) {
	t.Parallel()

	store := &stubRevoker{err: errors.New("db locked")}
	c := NewCoordinator(store, nil)

	_, err := c.RevokeByKey(context.Background(), "g1")
	assert.Error(t, err)
	_, err = c.RevokeBySubjectAndClient(context.Background(), "alice", "app")
	assert.Error(t, err)
}
