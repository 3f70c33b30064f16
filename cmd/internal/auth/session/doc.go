// Package session implements persistent ("remember me") login with cookie
// identities.
//
// Each login creates a cookie identity with a long-lived random series and a
// key that rotates on every use; only the key digest is stored. Presenting a
// stale key for a live series is treated as theft: the series is Blocked and
// the caller receives a CompromisedCookie security error. A series that does
// not exist for the account is reported as a denial-of-service probe.
//
// The series uniqueness pre-check (Exists, then Store) is not atomic. The
// storage unique constraint on (type, fingerprint, identifier) is the real
// guarantee; a lost race surfaces from Store as identity.ConflictError.
// Concurrent renewals of one series are last-write-wins.
//
// Transport (HTTP cookies) is out of scope here; see Value for the client form.
package session
