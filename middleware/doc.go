// Package middleware wires the session engine into net/http.
//
// The session middleware is the single per-request integration point: it
// loads or creates a session, checks anti-CSRF tokens on state-changing
// methods, exposes the session to handlers through the request context, and
// writes the outgoing cookie surface at response time.
//
//	secrets := []string{os.Getenv("SESSION_SECRET")}
//	cookies, err := middleware.NewCookieManager(appEnv, secrets,
//		cookie.WithSecure(true),
//	)
//	// handle err
//
//	manager, err := session.New(store)
//	// handle err
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
//		sess := middleware.MustGetSession(r.Context())
//		// ... credential validation happens outside the engine ...
//		if err := manager.Create(r.Context(), sess, userID, session.Data{"role": "USER"}, nil); err != nil {
//			http.Error(w, "login failed", http.StatusInternalServerError)
//			return
//		}
//		w.WriteHeader(http.StatusNoContent)
//	})
//
//	handler := middleware.Session(manager, cookies)(mux)
package middleware
