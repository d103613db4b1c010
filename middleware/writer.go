package middleware

import "net/http"

// sessionWriter wraps http.ResponseWriter to run a callback immediately
// before the first response byte. The session middleware uses it to emit
// cookies after all handler-side persistence writes have completed but
// before headers are flushed to the client.
type sessionWriter struct {
	http.ResponseWriter
	beforeWrite func()
	written     bool
	status      int
}

func (w *sessionWriter) WriteHeader(status int) {
	if !w.written {
		w.beforeWrite()
		w.written = true
		w.status = status
		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// flush runs the callback for handlers that never wrote a body.
func (w *sessionWriter) flush() {
	if !w.written {
		w.beforeWrite()
		w.written = true
	}
}

// Written reports whether the response has been written.
func (w *sessionWriter) Written() bool {
	return w.written
}

// Status returns the HTTP status code of the response.
func (w *sessionWriter) Status() int {
	return w.status
}

// Flush implements http.Flusher if the underlying writer supports it.
func (w *sessionWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
