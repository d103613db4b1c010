// Package logger provides slog attribute helpers for consistent structured
// logging across the session engine. Helpers return an empty Attr for nil or
// zero inputs, which slog drops silently, so call sites need no nil checks.
package logger
