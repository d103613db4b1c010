package session

import (
	"log/slog"
	"time"
)

// CSRFMethod selects how strictly state-changing requests are protected.
type CSRFMethod string

const (
	// CSRFEssential protects authenticated sessions only.
	CSRFEssential CSRFMethod = "essential"

	// CSRFAdvanced additionally enforces double-submit for anonymous
	// state changes; anonymous sessions carry their own anti-CSRF token.
	CSRFAdvanced CSRFMethod = "advanced"
)

// Config holds session engine configuration, loadable from the environment.
type Config struct {
	// CookiePrefix namespaces all cookies issued by the engine.
	CookiePrefix string `env:"SESSION_COOKIE_PREFIX" envDefault:"session"`

	// Expiry is the sliding session lifetime. Default 30 days.
	Expiry time.Duration `env:"SESSION_EXPIRY" envDefault:"720h"`

	// TouchInterval throttles sliding-expiry writes: the expiry is only
	// extended when at least this much time passed since the last update.
	// Zero extends on every successful verification.
	TouchInterval time.Duration `env:"SESSION_TOUCH_INTERVAL" envDefault:"0"`

	// Method selects the CSRF protection mode.
	Method CSRFMethod `env:"SESSION_CSRF_METHOD" envDefault:"essential"`

	// PublicDataKeysToSync are public data keys whose changes are propagated
	// to every other live session of the same user.
	PublicDataKeysToSync []string `env:"SESSION_SYNC_KEYS" envDefault:"role,roles"`
}

// Authorizer is the injected authorization predicate. It receives the
// current session and the requested action; returning false yields
// ErrNotAuthorized. Business rules live outside the engine.
type Authorizer func(sess Session, action string) bool

func defaultConfig() Config {
	return Config{
		CookiePrefix:         "session",
		Expiry:               43200 * time.Minute, // 30 days
		TouchInterval:        0,
		Method:               CSRFEssential,
		PublicDataKeysToSync: []string{"role", "roles"},
	}
}

// Option is a functional option for configuring the session manager.
type Option func(*Manager)

// WithConfig replaces the manager configuration wholesale.
// Zero-valued fields fall back to defaults.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		if cfg.CookiePrefix != "" {
			m.cfg.CookiePrefix = cfg.CookiePrefix
		}
		if cfg.Expiry > 0 {
			m.cfg.Expiry = cfg.Expiry
		}
		if cfg.TouchInterval > 0 {
			m.cfg.TouchInterval = cfg.TouchInterval
		}
		if cfg.Method != "" {
			m.cfg.Method = cfg.Method
		}
		if cfg.PublicDataKeysToSync != nil {
			m.cfg.PublicDataKeysToSync = cfg.PublicDataKeysToSync
		}
	}
}

// WithExpiry sets the sliding session lifetime.
func WithExpiry(expiry time.Duration) Option {
	return func(m *Manager) {
		if expiry > 0 {
			m.cfg.Expiry = expiry
		}
	}
}

// WithTouchInterval sets the minimum time between sliding-expiry writes.
// Set to 0 to extend on every successful verification.
func WithTouchInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval >= 0 {
			m.cfg.TouchInterval = interval
		}
	}
}

// WithCSRFMethod selects the CSRF protection mode.
func WithCSRFMethod(method CSRFMethod) Option {
	return func(m *Manager) {
		if method == CSRFEssential || method == CSRFAdvanced {
			m.cfg.Method = method
		}
	}
}

// WithSyncKeys sets the public data keys propagated across a user's sessions.
func WithSyncKeys(keys ...string) Option {
	return func(m *Manager) {
		m.cfg.PublicDataKeysToSync = keys
	}
}

// WithAuthorizer injects the authorization predicate consulted by Authorize.
func WithAuthorizer(authorizer Authorizer) Option {
	return func(m *Manager) {
		m.authorizer = authorizer
	}
}

// WithLogger sets the structured logger used for best-effort operations
// such as cross-session data propagation. Defaults to a discard handler.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}
