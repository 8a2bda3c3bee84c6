package clientauth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/duydn-dev/identityserver/pkg/keys"
	"github.com/duydn-dev/identityserver/pkg/logger"
)

// Request headers consumed by the verifier. These names are an external
// contract; clients sign against them.
const (
	HeaderClientID  = "X-Client-Id"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderAPIKey    = "X-Api-Key"
)

// MaxTimestampSkew is the replay window: a signed request is accepted
// when |now - timestamp| does not exceed it.
const MaxTimestampSkew = 5 * time.Minute

// staticKeyClientID is the identity assigned to callers authenticated by
// the static shared API key.
const staticKeyClientID = "api-key"

// KeyLookup resolves active client key pairs. Satisfied by *keys.Service.
type KeyLookup interface {
	GetActiveByClientID(ctx context.Context, clientID string) (*keys.ClientKeyPair, error)
	GetActiveByPublicKey(ctx context.Context, publicKey string) (*keys.ClientKeyPair, error)
}

// Authenticator validates inbound requests from external clients.
//
// Replay defense is the timestamp window alone: the nonce is part of the
// signed payload but is not tracked for reuse, so a captured request can
// be replayed until the window closes. This mirrors the upstream
// protocol; tightening it would break existing signers.
type Authenticator struct {
	keys      KeyLookup
	staticKey string
	log       *slog.Logger
	now       func() time.Time
}

// NewAuthenticator creates an Authenticator over the given key lookup.
// staticKey is the optional shared API key accepted ahead of all
// dynamic-key checks; empty disables that strategy. If log is nil the
// package logger is used.
func NewAuthenticator(lookup KeyLookup, staticKey string, log *slog.Logger) *Authenticator {
	if log == nil {
		log = logger.Get()
	}
	return &Authenticator{
		keys:      lookup,
		staticKey: staticKey,
		log:       log,
		now:       time.Now,
	}
}

// AuthenticateRequest runs the strategies in priority order and returns a
// structured result. It never panics and never lets a fault escape: every
// failure path resolves to a rejection. The request body may be consumed
// and is restored before returning.
func (a *Authenticator) AuthenticateRequest(r *http.Request) AuthResult {
	if token, ok := bearerCredential(r); ok {
		return a.authenticateBearer(r.Context(), token)
	}
	if hasSignatureHeaders(r) {
		return a.authenticateSignature(r)
	}
	return Reject(ReasonMissingCredential)
}

// bearerCredential extracts the API-key-style credential from X-Api-Key
// or an Authorization: Bearer header.
func bearerCredential(r *http.Request) (string, bool) {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key, true
	}
	authz := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(authz, "Bearer "); ok {
		token := strings.TrimSpace(after)
		return token, token != ""
	}
	return "", false
}

func hasSignatureHeaders(r *http.Request) bool {
	return r.Header.Get(HeaderClientID) != "" ||
		r.Header.Get(HeaderSignature) != "" ||
		r.Header.Get(HeaderTimestamp) != "" ||
		r.Header.Get(HeaderNonce) != ""
}

// authenticateBearer handles the static-secret and public-key-as-bearer
// modes. The static secret is compared first; failing that, the token is
// treated as public key material and resolved through the key store.
//
// The bearer mode carries no per-request signature, so possession of the
// private key is not proven. The stored pair is self-checked instead
// (sign-and-verify of a fixed message) to catch corrupted records.
func (a *Authenticator) authenticateBearer(ctx context.Context, token string) AuthResult {
	if a.staticKey != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(a.staticKey)) == 1 {
		return Accept(staticKeyClientID, MethodStaticKey)
	}

	pair, err := a.keys.GetActiveByPublicKey(ctx, token)
	if err != nil {
		if !errors.Is(err, keys.ErrNotFound) {
			a.log.Error("key lookup failed during bearer auth", "error", err)
		}
		return Reject(ReasonUnknownClient)
	}

	if err := pair.CheckConsistency(); err != nil {
		a.log.Error("stored key pair failed consistency check",
			"client_id", pair.ClientID, "error", err)
		return Reject(ReasonUnknownClient)
	}

	return Accept(pair.ClientID, MethodPublicKeyBearer)
}

// authenticateSignature handles the full per-request RSA signature mode:
// SHA-256 PKCS#1 v1.5 over timestamp || nonce || body.
func (a *Authenticator) authenticateSignature(r *http.Request) AuthResult {
	clientID := r.Header.Get(HeaderClientID)
	signature := r.Header.Get(HeaderSignature)
	timestampStr := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderNonce)

	if clientID == "" || signature == "" || timestampStr == "" || nonce == "" {
		return Reject(ReasonMissingCredential)
	}
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return Reject(ReasonMissingCredential)
	}

	now := a.now().UnixMilli()
	diff := now - timestamp
	if diff < 0 {
		diff = -diff
	}
	if diff > MaxTimestampSkew.Milliseconds() {
		a.log.Warn("request timestamp outside replay window",
			"client_id", clientID, "skew_ms", diff)
		return Reject(ReasonExpired)
	}

	pair, err := a.keys.GetActiveByClientID(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, keys.ErrNotFound) {
			a.log.Warn("no active key for client", "client_id", clientID)
		} else {
			a.log.Error("key lookup failed during signature auth",
				"client_id", clientID, "error", err)
		}
		return Reject(ReasonUnknownClient)
	}

	body, err := readBody(r)
	if err != nil {
		a.log.Error("failed to read request body", "client_id", clientID, "error", err)
		return Reject(ReasonInvalidSignature)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return Reject(ReasonBadSignatureFormat)
	}

	payload := make([]byte, 0, len(timestampStr)+len(nonce)+len(body))
	payload = append(payload, strconv.FormatInt(timestamp, 10)...)
	payload = append(payload, nonce...)
	payload = append(payload, body...)

	if err := keys.VerifySignature(pair.PublicKey, payload, sig); err != nil {
		a.log.Warn("invalid request signature", "client_id", clientID)
		return Reject(ReasonInvalidSignature)
	}

	a.log.Info("client authenticated via RSA signature", "client_id", clientID)
	return Accept(clientID, MethodSignature)
}

// readBody consumes the raw request body and restores it so the handler
// downstream can read it again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
