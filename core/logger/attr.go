package logger

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Attribute helpers use the empty Attr pattern for nil safety, allowing
// calls like log.Warn("msg", logger.Error(err)) without explicit nil checks.

// Error creates an attribute for a single error under the key "error".
// Returns empty Attr for nil errors.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component creates an attribute for component names.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count creates a generic counter attribute.
func Count(key string, n int64) slog.Attr {
	return slog.Int64(key, n)
}

// Method creates an attribute for HTTP methods.
func Method(method string) slog.Attr {
	return slog.String("method", method)
}

// Path creates an attribute for URL paths.
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// UserID creates an attribute for the owning user of a session.
// Returns empty Attr for the nil UUID.
func UserID(id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String("user_id", id.String())
}

// Handle creates an attribute for a session record handle.
// Returns empty Attr for the nil UUID.
func Handle(id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String("handle", id.String())
}
