// Package auth provides token generation and verification for the datastore
// action surface. Tokens are generated with crypto/rand and stored only as
// HMAC-SHA256 hashes.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// TokenBytes is the number of random bytes behind each token.
	// 32 bytes = 256 bits of entropy, 44 characters base64-encoded.
	TokenBytes = 32

	// MinSecretLength is the minimum HMAC secret length.
	MinSecretLength = 32
)

// ErrInvalidToken indicates the presented token does not match.
var ErrInvalidToken = errors.New("invalid authentication token")

// Generate creates a cryptographically secure random token.
func Generate() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Hash returns the hex-encoded HMAC-SHA256 of a token under the secret.
func Hash(token, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks presented tokens against a stored hash.
type Verifier struct {
	secret string
	hash   string
}

// NewVerifier builds a Verifier for the expected token hash.
func NewVerifier(secret, tokenHash string) *Verifier {
	return &Verifier{secret: secret, hash: tokenHash}
}

// Verify checks a presented token in constant time.
func (v *Verifier) Verify(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	presented := Hash(token, v.secret)
	if !hmac.Equal([]byte(presented), []byte(v.hash)) {
		return ErrInvalidToken
	}
	return nil
}
