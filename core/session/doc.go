// Package session implements the request-scoped session lifecycle:
// anonymous visitors, authenticated users, and revocation, backed by a
// pluggable persistence port.
//
// # Core Types
//
//   - Session: the per-request context object, a tagged state machine with
//     Anonymous, Authenticated, and Revoked states
//   - Manager: orchestrates the lifecycle over a Store
//   - Store: the persistence port (memory, Redis, Postgres, Mongo)
//   - Record: the persisted shape of a server-backed session
//   - Data: dynamic key-value payload with typed accessors
//
// # Lifecycle
//
// Every new visitor starts anonymous; the session lives entirely in a
// client-held encoded token and nothing is persisted. On successful login
// the external login handler calls Manager.Create, which generates a fresh
// access token and anti-CSRF token, persists a Record, and merges any data
// the anonymous session carried (explicit values win on conflict).
//
// Subsequent requests resolve the raw access token through
// Manager.LoadFromToken. Lookups are by one-way hash; absent, malformed,
// and expired tokens are deliberately indistinguishable, and every
// successful verification extends the expiry (sliding expiration).
//
// Manager.Revoke deletes the backing record and leaves the session in the
// terminal Revoked state; Manager.RevokeAll logs a user out everywhere.
// Expired records are swept by the Janitor.
//
// # Data
//
// Public data is client-readable and always mirrors the owning user under
// the "userId" key. Private data is server-only: writing it on an anonymous
// session forces a persisted record at that point, since it can no longer
// live client-side. Changes to configured keys (default role, roles) are
// propagated to the user's other live sessions, best effort.
//
// # Security Invariants
//
//   - Raw access tokens are never persisted; only SHA-256 digests are stored.
//   - Anti-CSRF tokens are immutable per handle; rotation creates a new
//     record with a new handle.
//   - Secret comparisons run in constant time.
//   - A manager refuses to construct without a working entropy source.
package session
