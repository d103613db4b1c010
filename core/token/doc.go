// Package token generates opaque session tokens and their verification hashes.
//
// Tokens are drawn from crypto/rand with 256 bits of entropy and encoded as
// base64url, which makes reuse across calls statistically impossible. Only the
// SHA-256 digest of a token is ever stored at rest; possession of the store
// contents does not allow forging a valid raw token.
//
// Secret comparisons (anti-CSRF tokens and similar) must go through Equal,
// which runs in constant time to avoid timing side channels.
package token
