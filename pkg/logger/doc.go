// Package logger builds slog loggers with the handful of settings this
// codebase actually varies (level, text/JSON encoding, destination, static
// attrs) and provides typed attribute constructors so domain identifiers end
// up under consistent keys across every log record.
package logger
