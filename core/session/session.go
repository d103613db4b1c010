package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionguard/core/token"
)

// State is the lifecycle state of a request-scoped session.
type State int8

const (
	// StateAnonymous is the initial state for any new visitor. Public data
	// lives entirely in the client-held encoded token unless private data
	// forced a server-side record.
	StateAnonymous State = iota

	// StateAuthenticated is a session backed by a persisted record with an
	// owning user.
	StateAuthenticated

	// StateRevoked is terminal: the record is deleted and the client reverts
	// to a fresh anonymous session on its next request.
	StateRevoked
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRevoked:
		return "revoked"
	}
	return "unknown"
}

// Session is the request-scoped context object handed to handlers.
// Exactly one Session exists per in-flight request; it is never shared
// across requests and is discarded at response completion.
//
// All mutations go through the Manager, which keeps the persisted record
// and the in-memory copy consistent.
type Session struct {
	state     State
	handle    uuid.UUID
	userID    uuid.UUID
	token     string
	csrfToken string
	expiresAt time.Time
	public    Data
	private   Data

	suppliedCSRF string
	csrfSupplied bool

	// tokenIssued signals the middleware that a new access token was
	// generated during this request and cookies must be (re)written.
	tokenIssued bool

	// modified signals that client-held anonymous data changed.
	modified bool
}

// State returns the current lifecycle state.
func (s Session) State() State { return s.state }

// IsAuthenticated reports whether the session is bound to a user.
func (s Session) IsAuthenticated() bool {
	return s.state == StateAuthenticated && s.userID != uuid.Nil
}

// IsRevoked reports whether the session was revoked during this request.
func (s Session) IsRevoked() bool { return s.state == StateRevoked }

// Authenticated returns the session itself when it is authenticated, or
// ErrNotAuthenticated otherwise. This replaces unchecked type narrowing:
// handlers that require a user call this and propagate the error.
func (s Session) Authenticated() (Session, error) {
	if !s.IsAuthenticated() {
		return Session{}, ErrNotAuthenticated
	}
	return s, nil
}

// Handle returns the persisted record identifier, or uuid.Nil for purely
// client-held anonymous sessions.
func (s Session) Handle() uuid.UUID { return s.handle }

// UserID returns the owning user, or uuid.Nil for anonymous sessions.
func (s Session) UserID() uuid.UUID { return s.userID }

// Token returns the raw access token. It is only populated when a token was
// issued during the current request; loads from an existing cookie never
// reconstruct the raw token.
func (s Session) Token() string { return s.token }

// CSRFToken returns the anti-CSRF secret bound to this session.
func (s Session) CSRFToken() string { return s.csrfToken }

// ExpiresAt returns the current expiry instant, zero for client-held
// anonymous sessions.
func (s Session) ExpiresAt() time.Time { return s.expiresAt }

// PublicData returns a copy of the client-readable data.
func (s Session) PublicData() Data { return s.public.Clone() }

// PrivateData returns a copy of the server-only data.
func (s Session) PrivateData() Data { return s.private.Clone() }

// CSRFSupplied reports whether the request carried an anti-CSRF token.
func (s Session) CSRFSupplied() bool { return s.csrfSupplied }

// CSRFMatches reports whether the supplied anti-CSRF token equals the one
// stored on the record, compared in constant time. The CSRF guard consults
// this; the session itself never enforces it.
func (s Session) CSRFMatches() bool {
	return s.csrfSupplied && s.csrfToken != "" && token.Equal(s.suppliedCSRF, s.csrfToken)
}

// TokenIssued reports whether a new access token was generated during this
// request. The middleware uses it to decide when to write cookies.
func (s Session) TokenIssued() bool { return s.tokenIssued }

// Modified reports whether client-held data changed during this request.
func (s Session) Modified() bool { return s.modified }
