// Package audit records authentication events.
//
// Services build an Event at each decision point (failed lookup, wrong
// credential, login, cookie expiry or compromise, logout, password change,
// token issue and verification) and hand it to an Emitter. The Emitter fills
// the event ID, timestamp and request metadata, then forwards it to a Sink:
// slog, PostgreSQL, a Redis stream, Prometheus counters, or several at once.
//
// Events carry digests only. There is no field for a raw password, key or token.
package audit
