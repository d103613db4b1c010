// Package cookie provides HTTP cookie management with HMAC signing and
// AES-256-GCM encryption.
//
// Signed cookies carry readable values whose authenticity the server can
// verify; the session engine uses them for access tokens. Encrypted cookies
// hide the value entirely; the engine uses them for the self-contained
// anonymous session payload.
//
// Multiple secrets enable zero-downtime key rotation: the first secret is
// used for writing, every secret is tried for reading. All secrets must be
// at least 32 characters.
//
//	manager, err := cookie.New([]string{primarySecret, previousSecret},
//		cookie.WithSecure(true),
//		cookie.WithSameSite(http.SameSiteLaxMode),
//	)
package cookie
