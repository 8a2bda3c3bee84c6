package clientauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duydn-dev/identityserver/pkg/keys"
)

// stubLookup is a KeyLookup over a fixed set of pairs, optionally failing
// every call to exercise the fail-closed paths.
type stubLookup struct {
	pairs map[string]*keys.ClientKeyPair
	err   error
}

func (s *stubLookup) GetActiveByClientID(_ context.Context, clientID string) (*keys.ClientKeyPair, error) {
	if s.err != nil {
		return nil, s.err
	}
	pair, ok := s.pairs[clientID]
	if !ok {
		return nil, keys.ErrNotFound
	}
	return pair, nil
}

func (s *stubLookup) GetActiveByPublicKey(_ context.Context, publicKey string) (*keys.ClientKeyPair, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, pair := range s.pairs {
		if pair.PublicKey == publicKey {
			return pair, nil
		}
	}
	return nil, keys.ErrNotFound
}

var testPair *keys.ClientKeyPair

func TestMain(m *testing.M) {
	// One real key pair shared across tests; generation is not free.
	pair, err := keys.NewKeyPair("client-1", 0, "", nil)
	if err != nil {
		panic(err)
	}
	testPair = pair
	m.Run()
}

func newTestAuthenticator(staticKey string) (*Authenticator, *stubLookup) {
	lookup := &stubLookup{pairs: map[string]*keys.ClientKeyPair{"client-1": testPair}}
	a := NewAuthenticator(lookup, staticKey, nil)
	a.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return a, lookup
}

// signedRequest builds a request carrying a valid signature for testPair
// at the given timestamp.
func signedRequest(t *testing.T, timestamp int64, nonce string, body []byte) *http.Request {
	t.Helper()

	tsStr := strconv.FormatInt(timestamp, 10)
	payload := append([]byte(tsStr), nonce...)
	payload = append(payload, body...)
	sig, err := keys.Sign(testPair.PrivateKey, payload)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/ping", bytes.NewReader(body))
	r.Header.Set(HeaderClientID, "client-1")
	r.Header.Set(HeaderTimestamp, tsStr)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	return r
}

func TestNoCredentials(t *testing.T) {
	a, _ := newTestAuthenticator("")
	r := httptest.NewRequest(http.MethodGet, "/ping", nil)

	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonMissingCredential, res.Reason)
}

func TestStaticKey(t *testing.T) {
	a, _ := newTestAuthenticator("super-secret")

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderAPIKey, "super-secret")
	res := a.AuthenticateRequest(r)
	require.True(t, res.Authenticated)
	assert.Equal(t, staticKeyClientID, res.ClientID)
	assert.Equal(t, MethodStaticKey, res.Method)
	assert.Equal(t, ScopeExternalClient, res.Scope)

	// Wrong secret is not a fallthrough to success.
	r = httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderAPIKey, "wrong")
	res = a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonUnknownClient, res.Reason)
}

func TestStaticKeyDisabledWhenEmpty(t *testing.T) {
	a, _ := newTestAuthenticator("")

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderAPIKey, "")
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonMissingCredential, res.Reason)
}

func TestPublicKeyBearer(t *testing.T) {
	a, _ := newTestAuthenticator("")

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderAPIKey, testPair.PublicKey)
	res := a.AuthenticateRequest(r)
	require.True(t, res.Authenticated)
	assert.Equal(t, "client-1", res.ClientID)
	assert.Equal(t, MethodPublicKeyBearer, res.Method)
}

func TestPublicKeyViaAuthorizationHeader(t *testing.T) {
	a, _ := newTestAuthenticator("")

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set("Authorization", "Bearer "+testPair.PublicKey)
	res := a.AuthenticateRequest(r)
	require.True(t, res.Authenticated)
	assert.Equal(t, MethodPublicKeyBearer, res.Method)
}

func TestUnknownBearerToken(t *testing.T) {
	a, _ := newTestAuthenticator("")

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderAPIKey, "who-is-this")
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonUnknownClient, res.Reason)
}

func TestBearerFailsClosedOnStoreError(t *testing.T) {
	a, lookup := newTestAuthenticator("")
	lookup.err = errors.New("connection refused")

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderAPIKey, testPair.PublicKey)
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonUnknownClient, res.Reason)
}

func TestBearerInconsistentStoredPair(t *testing.T) {
	other, err := keys.NewKeyPair("client-1", 0, "", nil)
	require.NoError(t, err)
	broken := *testPair
	broken.PrivateKey = other.PrivateKey

	lookup := &stubLookup{pairs: map[string]*keys.ClientKeyPair{"client-1": &broken}}
	a := NewAuthenticator(lookup, "", nil)

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderAPIKey, broken.PublicKey)
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonUnknownClient, res.Reason)
}

func TestSignedRequest(t *testing.T) {
	a, _ := newTestAuthenticator("")
	now := a.now().UnixMilli()

	res := a.AuthenticateRequest(signedRequest(t, now, "nonce-1", []byte(`{"n":1}`)))
	require.True(t, res.Authenticated)
	assert.Equal(t, "client-1", res.ClientID)
	assert.Equal(t, MethodSignature, res.Method)
}

func TestSignedRequestEmptyBody(t *testing.T) {
	a, _ := newTestAuthenticator("")
	now := a.now().UnixMilli()

	res := a.AuthenticateRequest(signedRequest(t, now, "nonce-1", nil))
	assert.True(t, res.Authenticated)
}

func TestSignedRequestBodyIsRestored(t *testing.T) {
	a, _ := newTestAuthenticator("")
	now := a.now().UnixMilli()
	body := []byte(`{"n":1}`)

	r := signedRequest(t, now, "nonce-1", body)
	res := a.AuthenticateRequest(r)
	require.True(t, res.Authenticated)

	restored, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, restored)
}

func TestReplayWindowBoundaries(t *testing.T) {
	a, _ := newTestAuthenticator("")
	now := a.now().UnixMilli()

	tests := []struct {
		name   string
		offset int64
		ok     bool
	}{
		{"just inside, past", -299_999, true},
		{"exactly at limit, past", -300_000, true},
		{"just outside, past", -300_001, false},
		{"just inside, future", 299_999, true},
		{"just outside, future", 300_001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.AuthenticateRequest(signedRequest(t, now+tt.offset, "nonce-1", nil))
			if tt.ok {
				assert.True(t, res.Authenticated)
			} else {
				assert.False(t, res.Authenticated)
				assert.Equal(t, ReasonExpired, res.Reason)
			}
		})
	}
}

func TestSignatureMissingHeaders(t *testing.T) {
	a, _ := newTestAuthenticator("")
	now := a.now().UnixMilli()

	// Any partial set of signature headers is a missing credential.
	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set(HeaderClientID, "client-1")
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(now, 10))
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonMissingCredential, res.Reason)
}

func TestSignatureUnparseableTimestamp(t *testing.T) {
	a, _ := newTestAuthenticator("")

	r := signedRequest(t, a.now().UnixMilli(), "nonce-1", nil)
	r.Header.Set(HeaderTimestamp, "yesterday")
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonMissingCredential, res.Reason)
}

func TestSignatureUnknownClient(t *testing.T) {
	a, _ := newTestAuthenticator("")

	r := signedRequest(t, a.now().UnixMilli(), "nonce-1", nil)
	r.Header.Set(HeaderClientID, "client-2")
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonUnknownClient, res.Reason)
}

func TestSignatureFailsClosedOnStoreError(t *testing.T) {
	a, lookup := newTestAuthenticator("")
	lookup.err = errors.New("connection refused")

	res := a.AuthenticateRequest(signedRequest(t, a.now().UnixMilli(), "nonce-1", nil))
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonUnknownClient, res.Reason)
}

func TestSignatureBadBase64(t *testing.T) {
	a, _ := newTestAuthenticator("")

	r := signedRequest(t, a.now().UnixMilli(), "nonce-1", nil)
	r.Header.Set(HeaderSignature, "%%not-base64%%")
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonBadSignatureFormat, res.Reason)
}

func TestSignatureOverWrongPayload(t *testing.T) {
	a, _ := newTestAuthenticator("")
	now := a.now().UnixMilli()

	// Signature covers one nonce, headers claim another.
	r := signedRequest(t, now, "nonce-1", nil)
	r.Header.Set(HeaderNonce, "nonce-2")
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonInvalidSignature, res.Reason)
}

func TestSignatureOverTamperedBody(t *testing.T) {
	a, _ := newTestAuthenticator("")
	now := a.now().UnixMilli()

	r := signedRequest(t, now, "nonce-1", []byte(`{"amount":10}`))
	r.Body = io.NopCloser(bytes.NewReader([]byte(`{"amount":99}`)))
	res := a.AuthenticateRequest(r)
	assert.False(t, res.Authenticated)
	assert.Equal(t, ReasonInvalidSignature, res.Reason)
}

func TestBearerTakesPriorityOverSignatureHeaders(t *testing.T) {
	a, _ := newTestAuthenticator("super-secret")
	now := a.now().UnixMilli()

	r := signedRequest(t, now, "nonce-1", nil)
	r.Header.Set(HeaderAPIKey, "super-secret")
	res := a.AuthenticateRequest(r)
	require.True(t, res.Authenticated)
	assert.Equal(t, MethodStaticKey, res.Method)
}
