package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/core/session"
	"github.com/dmitrymomot/sessionguard/middleware"
	"github.com/dmitrymomot/sessionguard/store/memory"
)

const testSecret = "middleware-secret-32-characters!"

const (
	sessionCookie = "session.session"
	csrfCookie    = "session.anti-csrf"
	anonCookie    = "session.anon-session"
)

// stack wires a manager, cookie manager, and handler mux behind the session
// middleware, with a cookie jar simulating a browser across requests.
type stack struct {
	t       *testing.T
	manager *session.Manager
	store   *memory.Store
	handler http.Handler
	jar     map[string]*http.Cookie
	userID  uuid.UUID
}

func newStack(t *testing.T, opts ...session.Option) *stack {
	t.Helper()

	store := memory.New()
	manager, err := session.New(store, opts...)
	require.NoError(t, err)

	cookies, err := middleware.NewCookieManager("test", []string{testSecret})
	require.NoError(t, err)

	s := &stack{
		t:       t,
		manager: manager,
		store:   store,
		jar:     make(map[string]*http.Cookie),
		userID:  uuid.New(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.MustGetSession(r.Context())
		fmt.Fprintf(w, "%v|%v", sess.PublicData()[session.KeyUserID], sess.PublicData()["theme"])
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.MustGetSession(r.Context())
		if err := manager.Create(r.Context(), sess, s.userID, session.Data{"plan": "pro"}, nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /public", func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.MustGetSession(r.Context())
		if err := manager.SetPublicData(r.Context(), sess, session.Data{"theme": "dark"}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /private", func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.MustGetSession(r.Context())
		if err := manager.SetPrivateData(r.Context(), sess, session.Data{"cart": "abc"}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.MustGetSession(r.Context())
		if err := manager.Revoke(r.Context(), sess); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	s.handler = middleware.Session(manager, cookies)(mux)
	return s
}

// do performs a request with the jar's cookies and folds Set-Cookie headers
// back into the jar, like a browser would.
func (s *stack) do(method, path string, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()

	r := httptest.NewRequest(method, path, nil)
	for _, c := range s.jar {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(s.jar, c.Name)
			continue
		}
		s.jar[c.Name] = c
	}

	return w
}

func (s *stack) csrf() string {
	c, ok := s.jar[csrfCookie]
	require.True(s.t, ok, "anti-csrf cookie not in jar")
	return c.Value
}

func TestSessionMiddleware_AnonymousVisit(t *testing.T) {
	t.Parallel()

	s := newStack(t)

	w := s.do("GET", "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<nil>|<nil>", w.Body.String())

	// A fresh visitor gets the self-contained anonymous cookie and nothing else.
	anon, ok := s.jar[anonCookie]
	require.True(t, ok)
	assert.True(t, anon.HttpOnly)
	assert.NotContains(t, s.jar, sessionCookie)
	assert.NotContains(t, s.jar, csrfCookie)
}

func TestSessionMiddleware_AnonymousPublicData(t *testing.T) {
	t.Parallel()

	s := newStack(t)

	// Anonymous visitors without a server-side record are exempt from the
	// CSRF check in essential mode.
	w := s.do("POST", "/public")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do("GET", "/")
	assert.Equal(t, "<nil>|dark", w.Body.String())

	// Everything lives in the cookie: the store holds no record.
	n, err := s.store.DeleteExpired(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionMiddleware_Login(t *testing.T) {
	t.Parallel()

	s := newStack(t)

	// Accumulate anonymous data, then log in: the data survives promotion.
	require.Equal(t, http.StatusNoContent, s.do("POST", "/public").Code)
	w := s.do("POST", "/login")
	require.Equal(t, http.StatusNoContent, w.Code)

	sess, ok := s.jar[sessionCookie]
	require.True(t, ok)
	assert.True(t, sess.HttpOnly)

	csrf, ok := s.jar[csrfCookie]
	require.True(t, ok)
	assert.False(t, csrf.HttpOnly, "anti-csrf cookie must be script-readable")

	// The anonymous cookie is superseded by the server-backed session.
	assert.NotContains(t, s.jar, anonCookie)

	w = s.do("GET", "/")
	assert.Equal(t, s.userID.String()+"|dark", w.Body.String())
}

func TestSessionMiddleware_CSRFProtection(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	require.Equal(t, http.StatusNoContent, s.do("POST", "/login").Code)

	t.Run("missing token rejected", func(t *testing.T) {
		w := s.do("POST", "/public")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		w := s.do("POST", "/public", middleware.HeaderCSRF, "forged")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("read-only methods exempt", func(t *testing.T) {
		w := s.do("GET", "/")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("matching token accepted", func(t *testing.T) {
		w := s.do("POST", "/public", middleware.HeaderCSRF, s.csrf())
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestSessionMiddleware_PrivateDataPersistsAnonymous(t *testing.T) {
	t.Parallel()

	s := newStack(t)

	w := s.do("POST", "/private")
	require.Equal(t, http.StatusNoContent, w.Code)

	// Private data forces a server-backed record: the client now holds an
	// access token instead of the self-contained payload.
	require.Contains(t, s.jar, sessionCookie)
	assert.Contains(t, s.jar, csrfCookie)

	// Still anonymous on the next request.
	w = s.do("GET", "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<nil>|<nil>", w.Body.String())
}

func TestSessionMiddleware_Logout(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	require.Equal(t, http.StatusNoContent, s.do("POST", "/login").Code)

	oldSession := s.jar[sessionCookie].Value

	w := s.do("POST", "/logout", middleware.HeaderCSRF, s.csrf())
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "true", w.Header().Get(middleware.HeaderSessionRevoked))

	// The whole cookie surface is cleared.
	assert.Empty(t, s.jar)

	// Replaying the old access token yields a fresh anonymous session.
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: oldSession})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<nil>|<nil>", rec.Body.String())
}

func TestSessionMiddleware_AdvancedCSRF(t *testing.T) {
	t.Parallel()

	s := newStack(t, session.WithCSRFMethod(session.CSRFAdvanced))

	// Prime the jar with the anonymous session and its anti-csrf cookie.
	require.Equal(t, http.StatusOK, s.do("GET", "/").Code)
	require.Contains(t, s.jar, csrfCookie)

	// Anonymous state changes require the double-submit token.
	w := s.do("POST", "/public")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do("POST", "/public", middleware.HeaderCSRF, s.csrf())
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionMiddleware_TamperedCookie(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	require.Equal(t, http.StatusNoContent, s.do("POST", "/login").Code)

	// A forged session cookie fails signature verification and the request
	// proceeds anonymously.
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "forged-value"})
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<nil>|<nil>", w.Body.String())
}

func TestSessionMiddleware_Skip(t *testing.T) {
	t.Parallel()

	store := memory.New()
	manager, err := session.New(store)
	require.NoError(t, err)
	cookies, err := middleware.NewCookieManager("test", []string{testSecret})
	require.NoError(t, err)

	mw := middleware.SessionWithConfig(middleware.SessionConfig{
		Manager: manager,
		Cookies: cookies,
		Skip:    func(r *http.Request) bool { return r.URL.Path == "/healthz" },
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := middleware.GetSession(r.Context())
		fmt.Fprintf(w, "%t", ok)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, "false", w.Body.String())
	assert.Empty(t, w.Result().Cookies())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/other", nil))
	assert.Equal(t, "true", w.Body.String())
}

func TestSessionWithConfig_Validation(t *testing.T) {
	t.Parallel()

	cookies, err := middleware.NewCookieManager("test", []string{testSecret})
	require.NoError(t, err)
	manager, err := session.New(memory.New())
	require.NoError(t, err)

	assert.Panics(t, func() {
		middleware.SessionWithConfig(middleware.SessionConfig{Cookies: cookies})
	})
	assert.Panics(t, func() {
		middleware.SessionWithConfig(middleware.SessionConfig{Manager: manager})
	})
}

func TestNewCookieManager(t *testing.T) {
	t.Parallel()

	t.Run("production requires a secret", func(t *testing.T) {
		t.Parallel()

		_, err := middleware.NewCookieManager("production", nil)
		assert.ErrorIs(t, err, middleware.ErrMissingSecret)

		_, err = middleware.NewCookieManager("production", []string{""})
		assert.ErrorIs(t, err, middleware.ErrMissingSecret)
	})

	t.Run("development falls back to ephemeral secret", func(t *testing.T) {
		t.Parallel()

		m, err := middleware.NewCookieManager("development", nil)
		require.NoError(t, err)
		assert.NotNil(t, m)
	})

	t.Run("configured secrets are used", func(t *testing.T) {
		t.Parallel()

		m, err := middleware.NewCookieManager("production", []string{testSecret})
		require.NoError(t, err)
		assert.NotNil(t, m)
	})
}

func TestMustGetSession_PanicsOutsideMiddleware(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		middleware.MustGetSession(t.Context())
	})
}

func TestGetSession_Pointer(t *testing.T) {
	t.Parallel()

	// The session stored in context is shared by pointer: mutations made by
	// inner handlers are visible to the middleware writing cookies.
	s := newStack(t)

	var fromCtx *session.Session
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		fromCtx, ok = middleware.GetSession(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	})

	cookies, err := middleware.NewCookieManager("test", []string{testSecret})
	require.NoError(t, err)
	handler := middleware.Session(s.manager, cookies)(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	require.NotNil(t, fromCtx)
	assert.Equal(t, session.StateAnonymous, fromCtx.State())
}
