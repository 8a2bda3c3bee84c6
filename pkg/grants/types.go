// Package grants adapts the persisted grant store left behind by the
// OAuth/OIDC authorization engine. Grants and device codes are created by
// that engine; this package only reads and deletes them.
package grants

import (
	"context"
	"time"
)

// Grant types written by the authorization engine.
const (
	TypeAuthorizationCode = "authorization_code"
	TypeRefreshToken      = "refresh_token"
	TypeReferenceToken    = "reference_token"
	TypeDeviceCode        = "device_code"
	TypeUserConsent       = "user_consent"
)

// PersistedGrant is one row of the grant store: an issued token or
// authorization artifact. Data is an opaque payload owned by the engine
// and never inspected here.
type PersistedGrant struct {
	Key          string     `json:"key"`
	Type         string     `json:"type"`
	ClientID     string     `json:"clientId"`
	SubjectID    string     `json:"subjectId,omitempty"`
	SessionID    string     `json:"sessionId,omitempty"`
	CreationTime time.Time  `json:"creationTime"`
	Expiration   *time.Time `json:"expiration,omitempty"`
	Data         string     `json:"data,omitempty"`
}

// DeviceFlowCode is a pending device authorization. SubjectID is empty
// until the user approves the device.
type DeviceFlowCode struct {
	UserCode     string     `json:"userCode"`
	DeviceCode   string     `json:"deviceCode"`
	ClientID     string     `json:"clientId"`
	SubjectID    string     `json:"subjectId,omitempty"`
	CreationTime time.Time  `json:"creationTime"`
	Expiration   *time.Time `json:"expiration,omitempty"`
}

// GrantFilter selects grants for paged listing. The string fields are
// substring matches when non-empty.
type GrantFilter struct {
	Page      int
	PageSize  int
	SubjectID string
	ClientID  string
	Type      string
}

// DeviceCodeFilter selects device codes for paged listing.
type DeviceCodeFilter struct {
	Page     int
	PageSize int
	UserCode string
	ClientID string
}

// Store is the read/delete contract over the durable grant store. Each
// revocation call is a single transaction: all matched rows are removed
// together or none are.
type Store interface {
	// ListGrants returns one page of grants matching the filter, newest
	// first, along with the total match count.
	ListGrants(ctx context.Context, f GrantFilter) ([]PersistedGrant, int, error)
	// ListGrantsBySubject returns all grants for a subject, newest first.
	ListGrantsBySubject(ctx context.Context, subjectID string) ([]PersistedGrant, error)
	// RevokeByKey deletes a single grant; false if absent.
	RevokeByKey(ctx context.Context, key string) (bool, error)
	// RevokeBySubjectAndClient deletes all grants matching both fields
	// exactly and returns the count removed. Zero is not an error.
	RevokeBySubjectAndClient(ctx context.Context, subjectID, clientID string) (int, error)
	// RevokeBySession deletes every grant sharing the session ID.
	RevokeBySession(ctx context.Context, sessionID string) (int, error)
	// RevokeBySubject deletes every grant for the subject.
	RevokeBySubject(ctx context.Context, subjectID string) (int, error)
	// ListDeviceCodes returns one page of device codes matching the
	// filter, newest first, along with the total match count.
	ListDeviceCodes(ctx context.Context, f DeviceCodeFilter) ([]DeviceFlowCode, int, error)
	// RemoveDeviceCode deletes a device code by user code; false if absent.
	RemoveDeviceCode(ctx context.Context, userCode string) (bool, error)
	// Close releases any resources held by the store.
	Close() error
}
