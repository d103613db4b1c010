package session

import (
	"time"

	"github.com/google/uuid"
)

// Record is the persisted shape of a server-backed session.
// Only the token hash is stored; the raw access token lives on the client.
// The anti-CSRF token is immutable for the life of the handle: rotation
// creates a new record rather than re-issuing CSRF on the same handle.
type Record struct {
	// Handle uniquely identifies the record. It is opaque and never leaves the server.
	Handle uuid.UUID `json:"handle"`

	// UserID is the owning user. Invalid for records created by writing
	// private data on an anonymous session.
	UserID uuid.NullUUID `json:"userId"`

	// TokenHash is the one-way digest of the access token, used as lookup key.
	TokenHash string `json:"hashedSessionToken"`

	// CSRFToken is the anti-CSRF secret bound 1:1 to this handle.
	CSRFToken string `json:"antiCSRFToken"`

	// Public is client-readable data. Always mirrors UserID under the
	// "userId" key.
	Public Data `json:"publicData"`

	// Private is server-only data, never exposed to the client.
	Private Data `json:"privateData,omitempty"`

	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsExpired reports whether the record is invalid at or after ExpiresAt.
func (r Record) IsExpired() bool {
	return !time.Now().Before(r.ExpiresAt)
}

// Clone returns a deep-enough copy for safe concurrent reads:
// the data maps are copied, values are shared.
func (r Record) Clone() Record {
	out := r
	out.Public = r.Public.Clone()
	if r.Private != nil {
		out.Private = r.Private.Clone()
	}
	return out
}
