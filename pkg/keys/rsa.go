package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Supported RSA key sizes in bits.
const (
	DefaultKeySize = 2048
	MinKeySize     = 2048
	MaxKeySize     = 8192
)

// consistencyMessage is the fixed message signed during the stored-pair
// consistency check.
const consistencyMessage = "client-key-pair-consistency-check"

// NewKeyPair generates a fresh RSA key pair of the requested size for the
// given client. The returned pair is marked active but not yet persisted.
func NewKeyPair(clientID string, keySize int, description string, expiresAt *time.Time) (*ClientKeyPair, error) {
	if keySize == 0 {
		keySize = DefaultKeySize
	}
	if keySize < MinKeySize || keySize > MaxKeySize {
		return nil, fmt.Errorf("%w: unsupported key size %d", ErrKeyGeneration, keySize)
	}

	priv, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding private key: %w", ErrKeyGeneration, err)
	}
	pubDER := x509.MarshalPKCS1PublicKey(&priv.PublicKey)

	return &ClientKeyPair{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		PrivateKey:  base64.StdEncoding.EncodeToString(privDER),
		PublicKey:   base64.StdEncoding.EncodeToString(pubDER),
		KeySize:     keySize,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
		IsActive:    true,
		Description: description,
	}, nil
}

// ParsePublicKey decodes a base64 PKCS#1 DER public key.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return pub, nil
}

// ParsePrivateKey decodes a base64 PKCS#8 DER private key.
func ParsePrivateKey(encoded string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return priv, nil
}

// Sign produces a SHA-256 PKCS#1 v1.5 signature over payload with the
// given base64-encoded private key.
func Sign(privateKey string, payload []byte) ([]byte, error) {
	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
}

// VerifySignature checks a SHA-256 PKCS#1 v1.5 signature over payload
// against the given base64-encoded public key.
func VerifySignature(publicKey string, payload, signature []byte) error {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
}

// CheckConsistency signs a fixed message with the stored private key and
// verifies it with the stored public key. This guards against corrupted
// records where the two halves no longer belong together; it is not a
// proof of possession by the caller.
func (k *ClientKeyPair) CheckConsistency() error {
	sig, err := Sign(k.PrivateKey, []byte(consistencyMessage))
	if err != nil {
		return fmt.Errorf("signing consistency message: %w", err)
	}
	if err := VerifySignature(k.PublicKey, []byte(consistencyMessage), sig); err != nil {
		return fmt.Errorf("stored key pair is inconsistent: %w", err)
	}
	return nil
}
