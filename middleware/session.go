package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionguard/core/cookie"
	"github.com/dmitrymomot/sessionguard/core/csrf"
	"github.com/dmitrymomot/sessionguard/core/logger"
	"github.com/dmitrymomot/sessionguard/core/session"
	"github.com/dmitrymomot/sessionguard/core/token"
)

const (
	// HeaderCSRF is the request header carrying the anti-CSRF token on
	// state-changing calls.
	HeaderCSRF = "anti-csrf"

	// HeaderSessionRevoked is set on responses after revocation, instructing
	// the client to purge any cached anti-CSRF value.
	HeaderSessionRevoked = "session-revoked"

	// anonCookieMaxAge keeps the anonymous session cookie effectively
	// non-expiring (10 years).
	anonCookieMaxAge = 10 * 365 * 24 * 60 * 60
)

// ErrMissingSecret is returned when constructing the session stack in
// production without a signing secret.
var ErrMissingSecret = errors.New("signing secret of at least 32 characters is required in production")

type sessionKey struct{}

// SessionConfig configures the session middleware.
type SessionConfig struct {
	// Manager drives the session lifecycle (required).
	Manager *session.Manager

	// Cookies signs and encrypts the cookie surface (required). Its defaults
	// determine Secure, SameSite, and Domain attributes.
	Cookies *cookie.Manager

	// Guard validates anti-CSRF tokens on state-changing requests.
	// Defaults to a guard matching the manager's configured CSRF method.
	Guard *csrf.Guard

	// Skip disables session handling for specific requests (health checks etc).
	Skip func(r *http.Request) bool

	// Logger for structured logging (default: discard).
	Logger *slog.Logger

	// ErrorHandler overrides the default error responses: CSRF rejections
	// map to 403, persistence failures to 500.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

// Session creates middleware with default configuration.
func Session(manager *session.Manager, cookies *cookie.Manager) func(http.Handler) http.Handler {
	return SessionWithConfig(SessionConfig{Manager: manager, Cookies: cookies})
}

// SessionWithConfig creates the per-request session middleware.
//
// On the way in it resolves the access-token cookie to an authenticated
// session, falls back to the encoded anonymous cookie, and finally creates
// a fresh anonymous session, so a request always carries exactly one session.
// State-changing methods are CSRF-checked before the handler runs.
//
// On the way out, cookies reflecting the handler's mutations are emitted
// immediately before the first response byte. By then every persistence
// write the handler requested has completed, so a client reusing the new
// cookie on its very next request observes consistent state, and a request
// cancelled mid-persist never receives a cookie without a backing record.
func SessionWithConfig(cfg SessionConfig) func(http.Handler) http.Handler {
	if cfg.Manager == nil {
		panic("session middleware: manager is required")
	}
	if cfg.Cookies == nil {
		panic("session middleware: cookie manager is required")
	}
	if cfg.Guard == nil {
		cfg.Guard = csrf.New(cfg.Manager.Config().Method)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	prefix := cfg.Manager.Config().CookiePrefix
	names := cookieNames{
		session: prefix + ".session",
		csrf:    prefix + ".anti-csrf",
		anon:    prefix + ".anon-session",
	}

	m := &sessionMiddleware{cfg: cfg, names: names}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			m.handle(w, r, next)
		})
	}
}

type cookieNames struct {
	session string
	csrf    string
	anon    string
}

type sessionMiddleware struct {
	cfg   SessionConfig
	names cookieNames
}

func (m *sessionMiddleware) handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	suppliedCSRF := r.Header.Get(HeaderCSRF)

	sess, err := m.load(r, suppliedCSRF)
	if err != nil {
		m.cfg.Logger.ErrorContext(r.Context(), "session middleware: failed to load session", logger.Error(err))
		m.cfg.ErrorHandler(w, r, err)
		return
	}

	if isStateChanging(r.Method) {
		if err := m.cfg.Guard.Check(*sess, suppliedCSRF); err != nil {
			m.cfg.Logger.WarnContext(r.Context(), "session middleware: csrf rejection",
				logger.Method(r.Method), logger.Path(r.URL.Path), logger.Error(err))
			m.cfg.ErrorHandler(w, r, err)
			return
		}
	}

	ctx := context.WithValue(r.Context(), sessionKey{}, sess)

	// Cookie emission is deferred to the moment the first response byte is
	// written, after all session mutations and their persistence writes.
	ww := &sessionWriter{
		ResponseWriter: w,
		beforeWrite:    func() { m.writeCookies(w, r, sess) },
	}

	next.ServeHTTP(ww, r.WithContext(ctx))

	// Handlers that produce no body still get their cookies.
	ww.flush()
}

// load resolves the request to a session: access-token cookie first, then
// the self-contained anonymous cookie, then a fresh anonymous session.
// Invalid or expired tokens fail closed into the anonymous fallbacks;
// persistence failures abort the request.
func (m *sessionMiddleware) load(r *http.Request, suppliedCSRF string) (*session.Session, error) {
	if raw, err := m.cfg.Cookies.GetSigned(r, m.names.session); err == nil {
		sess, err := m.cfg.Manager.LoadFromToken(r.Context(), raw, suppliedCSRF)
		if err == nil {
			return &sess, nil
		}
		if errors.Is(err, session.ErrStoreFailed) {
			return nil, err
		}
		// Fall through: unknown or expired token is treated as no session.
	}

	if payload, err := m.cfg.Cookies.GetEncrypted(r, m.names.anon); err == nil {
		if sess, err := m.cfg.Manager.DecodeAnonymous(payload, suppliedCSRF); err == nil {
			return &sess, nil
		}
		// Undecodable payload is treated as no session.
	}

	sess, err := m.cfg.Manager.NewAnonymous()
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// writeCookies emits the cookie surface matching the session's final state.
func (m *sessionMiddleware) writeCookies(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	log := m.cfg.Logger

	switch {
	case sess.IsRevoked():
		m.cfg.Cookies.Delete(w, m.names.session)
		m.cfg.Cookies.Delete(w, m.names.csrf, cookie.WithHTTPOnly(false))
		m.cfg.Cookies.Delete(w, m.names.anon)
		w.Header().Set(HeaderSessionRevoked, "true")

	case sess.TokenIssued():
		maxAge := int(time.Until(sess.ExpiresAt()).Seconds())
		if err := m.cfg.Cookies.SetSigned(w, m.names.session, sess.Token(),
			cookie.WithHTTPOnly(true),
			cookie.WithMaxAge(maxAge),
		); err != nil {
			log.ErrorContext(r.Context(), "session middleware: failed to set session cookie", logger.Error(err))
		}
		if err := m.cfg.Cookies.Set(w, m.names.csrf, sess.CSRFToken(),
			cookie.WithHTTPOnly(false),
			cookie.WithMaxAge(maxAge),
		); err != nil {
			log.ErrorContext(r.Context(), "session middleware: failed to set anti-csrf cookie", logger.Error(err))
		}
		// The anonymous token, if any, is superseded.
		m.cfg.Cookies.Delete(w, m.names.anon)

	case sess.State() == session.StateAnonymous && sess.Handle() == uuid.Nil && sess.Modified():
		payload, err := m.cfg.Manager.EncodeAnonymous(*sess)
		if err != nil {
			log.ErrorContext(r.Context(), "session middleware: failed to encode anonymous session", logger.Error(err))
			return
		}
		if err := m.cfg.Cookies.SetEncrypted(w, m.names.anon, payload,
			cookie.WithHTTPOnly(true),
			cookie.WithMaxAge(anonCookieMaxAge),
		); err != nil {
			log.ErrorContext(r.Context(), "session middleware: failed to set anonymous cookie", logger.Error(err))
		}
		// Advanced CSRF mode: anonymous sessions expose their token for
		// double-submit.
		if sess.CSRFToken() != "" {
			if err := m.cfg.Cookies.Set(w, m.names.csrf, sess.CSRFToken(),
				cookie.WithHTTPOnly(false),
				cookie.WithMaxAge(anonCookieMaxAge),
			); err != nil {
				log.ErrorContext(r.Context(), "session middleware: failed to set anti-csrf cookie", logger.Error(err))
			}
		}
	}
}

// GetSession retrieves the request's session from ctx.
// Handlers mutate the session through the manager using this pointer; the
// middleware observes the result when writing the response.
func GetSession(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*session.Session)
	return sess, ok
}

// MustGetSession retrieves the session or panics. Use only below the
// session middleware, where its presence is guaranteed.
func MustGetSession(ctx context.Context) *session.Session {
	sess, ok := GetSession(ctx)
	if !ok {
		panic("session not found in context")
	}
	return sess
}

// NewCookieManager builds the cookie manager for the session stack,
// enforcing the production secret requirement: in production a signing
// secret must be configured or construction fails with ErrMissingSecret.
// Outside production a missing secret falls back to an ephemeral random
// one, so sessions do not survive process restarts.
func NewCookieManager(environment string, secrets []string, opts ...cookie.Option) (*cookie.Manager, error) {
	var nonEmpty []string
	for _, s := range secrets {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}

	if len(nonEmpty) == 0 {
		if environment == "production" {
			return nil, ErrMissingSecret
		}
		ephemeral, err := token.Generate()
		if err != nil {
			return nil, err
		}
		nonEmpty = []string{ephemeral}
	}

	return cookie.New(nonEmpty, opts...)
}

// isStateChanging reports whether the method mutates state by HTTP
// convention. Read-only methods are exempt from CSRF checks by convention
// of the caller, not by the guard.
func isStateChanging(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case csrf.IsCSRFError(err):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, session.ErrNotAuthorized), errors.Is(err, session.ErrNotAuthenticated):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
