// Package logger builds slog loggers with per-environment defaults and a
// handler decorator that copies request-scoped values (request id, user id)
// from the context into every record. attr.go holds the attribute helpers
// shared across the billing code so keys stay consistent.
package logger
