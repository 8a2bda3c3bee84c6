// Package revocation orchestrates administrative grant revocation. Each
// verb maps to a single grant-store transaction, so a session is never
// left half revoked, and repeating a call is a zero-count no-op.
package revocation

import (
	"context"
	"log/slog"

	"github.com/duydn-dev/identityserver/pkg/logger"
)

// GrantRevoker is the slice of the grant store the coordinator needs.
type GrantRevoker interface {
	RevokeByKey(ctx context.Context, key string) (bool, error)
	RevokeBySubjectAndClient(ctx context.Context, subjectID, clientID string) (int, error)
}

// Coordinator wraps the revocation verbs with audit-worthy framing logs.
type Coordinator struct {
	store GrantRevoker
	log   *slog.Logger
}

// NewCoordinator creates a Coordinator over the given store. If log is
// nil the package logger is used.
func NewCoordinator(store GrantRevoker, log *slog.Logger) *Coordinator {
	if log == nil {
		log = logger.Get()
	}
	return &Coordinator{store: store, log: log}
}

// RevokeByKey removes a single grant. Returns false when the grant does
// not exist, which is not an error.
func (c *Coordinator) RevokeByKey(ctx context.Context, key string) (bool, error) {
	c.log.Info("revoking grant", "key", key)
	found, err := c.store.RevokeByKey(ctx, key)
	if err != nil {
		c.log.Error("grant revocation failed", "key", key, "error", err)
		return false, err
	}
	c.log.Info("grant revocation complete", "key", key, "found", found)
	return found, nil
}

// RevokeBySubjectAndClient removes every grant matching the subject and
// client exactly and returns the count removed.
func (c *Coordinator) RevokeBySubjectAndClient(ctx context.Context, subjectID, clientID string) (int, error) {
	c.log.Info("revoking grants for subject and client",
		"subject_id", subjectID, "client_id", clientID)
	count, err := c.store.RevokeBySubjectAndClient(ctx, subjectID, clientID)
	if err != nil {
		c.log.Error("bulk grant revocation failed",
			"subject_id", subjectID, "client_id", clientID, "error", err)
		return 0, err
	}
	c.log.Info("bulk grant revocation complete",
		"subject_id", subjectID, "client_id", clientID, "grants_removed", count)
	return count, nil
}
