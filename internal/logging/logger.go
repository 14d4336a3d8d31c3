// Package logging defines a minimal structured-logging interface used across
// the project, plus the slog-backed implementation the binary wires in.
package logging

import "context"

// Logger is a context-aware, structured logger. The variadic args are
// interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "upload started", "files", n, "folder", id)
type Logger interface {
	// Debug logs fine-grained events (per-part uploads, retries).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs stage transitions and call-level outcomes.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions (retry scheduled,
	// best-effort cleanup failed).
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs terminal failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given
	// key-value pairs.
	With(args ...any) Logger
}
