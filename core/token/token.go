package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// tokenBytes is the amount of entropy drawn per token. 32 bytes (256 bits)
// encodes to 43 base64url characters.
const tokenBytes = 32

// ErrGeneration is returned when the system entropy source fails.
// Callers must treat this as fatal: issuing guessable tokens is never acceptable.
var ErrGeneration = errors.New("failed to generate token")

// Generate returns a cryptographically secure opaque token.
// The token has no decodable structure and serves purely as a lookup secret.
func Generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns the deterministic SHA-256 digest of a raw token, base64url encoded.
// The digest is the at-rest lookup key; the raw token itself is never persisted.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Equal compares two secrets in constant time.
// Inputs are hashed first so the comparison leaks neither content nor length.
func Equal(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// VerifyEntropy draws a single token to prove the entropy source works.
// Call it once at startup; a process without secure randomness must not serve requests.
func VerifyEntropy() error {
	_, err := Generate()
	return err
}
