package session

import "errors"

var (
	// ErrInvalidToken is returned when a raw token is malformed, unknown, or
	// expired. The three cases are deliberately indistinguishable so callers
	// cannot probe for the existence or expiry of other sessions.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrSessionExpired marks an expired record internally. It always surfaces
	// to callers as ErrInvalidToken.
	ErrSessionExpired = errors.New("session has expired")

	// ErrSessionNotFound is returned by stores when a record cannot be found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrHandleCollision is returned by stores when a create hits an existing
	// handle or token hash.
	ErrHandleCollision = errors.New("session handle or token hash already exists")

	// ErrNotAuthenticated is returned when an operation requires an
	// authenticated session.
	ErrNotAuthenticated = errors.New("session is not authenticated")

	// ErrNotAuthorized is returned when the injected authorization predicate
	// rejects the requested action.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrRevoked is returned when mutating a session that has been revoked
	// during the current request.
	ErrRevoked = errors.New("session has been revoked")

	// ErrInvalidUserID is returned when promoting a session with a nil user ID.
	ErrInvalidUserID = errors.New("invalid user ID")

	// ErrStoreFailed wraps unexpected persistence failures. These are fatal for
	// the current request and are never retried automatically.
	ErrStoreFailed = errors.New("session store failure")

	// ErrNoStore is returned when constructing a manager without a store.
	ErrNoStore = errors.New("session store is required")

	// ErrInvalidPayload is returned when an anonymous session payload cannot
	// be decoded.
	ErrInvalidPayload = errors.New("invalid anonymous session payload")
)
