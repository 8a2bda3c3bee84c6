// Package sessions presents persisted grants as logical user sessions. A
// session is the set of grants sharing a session ID; grants without one
// stand alone as their own singleton session.
package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/duydn-dev/identityserver/pkg/grants"
	"github.com/duydn-dev/identityserver/pkg/logger"
)

// SessionInfo is the representative grant for one logical session. It is
// derived on read and never persisted.
type SessionInfo struct {
	SessionID    string     `json:"sessionId"`
	ClientID     string     `json:"clientId"`
	SubjectID    string     `json:"subjectId"`
	CreationTime time.Time  `json:"creationTime"`
	Expiration   *time.Time `json:"expiration,omitempty"`
	Type         string     `json:"type"`
}

// GrantStore is the slice of the grant store the aggregator needs.
type GrantStore interface {
	ListGrantsBySubject(ctx context.Context, subjectID string) ([]grants.PersistedGrant, error)
	RevokeBySession(ctx context.Context, sessionID string) (int, error)
	RevokeBySubject(ctx context.Context, subjectID string) (int, error)
}

// Aggregator groups and revokes grants by session identity.
type Aggregator struct {
	store GrantStore
	log   *slog.Logger
}

// NewAggregator creates an Aggregator over the given grant store. If log
// is nil the package logger is used.
func NewAggregator(store GrantStore, log *slog.Logger) *Aggregator {
	if log == nil {
		log = logger.Get()
	}
	return &Aggregator{store: store, log: log}
}

// GetUserSessions returns one SessionInfo per distinct session for the
// subject. Grants are read newest first and the first grant seen for
// each session wins, so the representative is the most recently created
// member. A grant without a session ID falls back to its own key.
func (a *Aggregator) GetUserSessions(ctx context.Context, subjectID string) ([]SessionInfo, error) {
	all, err := a.store.ListGrantsBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(all))
	var result []SessionInfo
	for _, g := range all {
		sessionID := g.SessionID
		if sessionID == "" {
			sessionID = g.Key
		}
		if _, ok := seen[sessionID]; ok {
			continue
		}
		seen[sessionID] = struct{}{}
		result = append(result, SessionInfo{
			SessionID:    sessionID,
			ClientID:     g.ClientID,
			SubjectID:    g.SubjectID,
			CreationTime: g.CreationTime,
			Expiration:   g.Expiration,
			Type:         g.Type,
		})
	}

	return result, nil
}

// RevokeSession deletes every grant sharing the session ID. Returns
// whether any were found.
func (a *Aggregator) RevokeSession(ctx context.Context, sessionID string) (bool, error) {
	count, err := a.store.RevokeBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	a.log.Info("revoked session", "session_id", sessionID, "grants_removed", count)
	return count > 0, nil
}

// RevokeAllForUser deletes every grant for the subject regardless of
// session grouping and returns the count removed.
func (a *Aggregator) RevokeAllForUser(ctx context.Context, subjectID string) (int, error) {
	count, err := a.store.RevokeBySubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	a.log.Info("revoked all user sessions", "subject_id", subjectID, "grants_removed", count)
	return count, nil
}
