package csrf

import (
	"errors"

	"github.com/dmitrymomot/sessionguard/core/session"
	"github.com/dmitrymomot/sessionguard/core/token"
)

var (
	// ErrTokenMissing is returned when a protected request carries no
	// anti-CSRF token.
	ErrTokenMissing = errors.New("anti-csrf token is missing")

	// ErrTokenMismatch is returned when the supplied anti-CSRF token does not
	// match the one bound to the session.
	ErrTokenMismatch = errors.New("anti-csrf token does not match session")
)

// IsCSRFError reports whether err is a CSRF rejection. The middleware maps
// these to a 4xx response.
func IsCSRFError(err error) bool {
	return errors.Is(err, ErrTokenMissing) || errors.Is(err, ErrTokenMismatch)
}

// Guard validates anti-CSRF tokens on state-changing requests.
// Read-only requests are exempt by convention of the caller; the guard
// itself never inspects methods or routes.
type Guard struct {
	method session.CSRFMethod
}

// New creates a guard for the given protection mode. An empty method
// defaults to essential.
func New(method session.CSRFMethod) *Guard {
	if method != session.CSRFAdvanced {
		method = session.CSRFEssential
	}
	return &Guard{method: method}
}

// Check validates the supplied anti-CSRF token against the session.
//
// In essential mode only sessions bound to a server-side record are
// protected: anonymous visitors without a record hold no secret to prove.
// In advanced mode every session carries an anti-CSRF token and state
// changes always require the double-submit match.
//
// Comparison runs in constant time. CSRF tokens are never rotated
// independently of the access token, so a passing check today keeps passing
// until the session itself is replaced.
func (g *Guard) Check(sess session.Session, supplied string) error {
	if sess.IsRevoked() {
		return ErrTokenMismatch
	}

	if g.method == session.CSRFEssential && sess.CSRFToken() == "" && !sess.IsAuthenticated() {
		return nil
	}

	if supplied == "" {
		return ErrTokenMissing
	}

	if !token.Equal(supplied, sess.CSRFToken()) {
		return ErrTokenMismatch
	}

	return nil
}
