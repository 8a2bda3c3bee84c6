// Package clientauth authenticates inbound requests from external
// clients. Three strategies are tried in a fixed priority order behind
// one AuthenticateRequest contract: a static shared API key, public key
// material presented as a bearer credential, and a per-request RSA
// signature over timestamp, nonce and body.
package clientauth

// Method identifies which strategy authenticated a request.
type Method string

// Authentication methods, in priority order.
const (
	MethodStaticKey       Method = "static_key"
	MethodPublicKeyBearer Method = "public_key_bearer"
	MethodSignature       Method = "signature"
)

// Reason classifies why a request was rejected. Every rejection maps to a
// 401 at the transport layer; the reason is for logging and the response
// body.
type Reason string

// Rejection reasons.
const (
	// ReasonMissingCredential means one or more required credentials or
	// signature headers were absent or unparseable.
	ReasonMissingCredential Reason = "missing_credential"
	// ReasonExpired means the request timestamp fell outside the replay
	// window.
	ReasonExpired Reason = "expired"
	// ReasonUnknownClient means no active, unexpired key was found for
	// the claimed client. Store and cache faults map here too: a lookup
	// that cannot complete denies access rather than failing open.
	ReasonUnknownClient Reason = "unknown_client"
	// ReasonBadSignatureFormat means the signature was not valid base64.
	ReasonBadSignatureFormat Reason = "bad_signature_format"
	// ReasonInvalidSignature means the signature did not verify against
	// the client's active public key.
	ReasonInvalidSignature Reason = "invalid_signature"
)

// ScopeExternalClient is the fixed scope marker carried by every
// authenticated external client identity.
const ScopeExternalClient = "external_client"

// AuthResult is the outcome of AuthenticateRequest: either an
// authenticated client identity or a classified rejection.
type AuthResult struct {
	Authenticated bool
	ClientID      string
	Scope         string
	Method        Method
	Reason        Reason
}

// Accept builds a successful result for the given client and method.
func Accept(clientID string, method Method) AuthResult {
	return AuthResult{
		Authenticated: true,
		ClientID:      clientID,
		Scope:         ScopeExternalClient,
		Method:        method,
	}
}

// Reject builds a rejection result with the given reason.
func Reject(reason Reason) AuthResult {
	return AuthResult{Reason: reason}
}
