// Package logging provides file-based structured logging with rotation for
// findx. Logs are JSON-formatted (log/slog) and written to ~/.findx/logs/
// by default, optionally tee'd to stderr.
package logging
