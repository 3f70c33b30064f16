// Package identity models the authentication factors an account can log in with.
//
// It contains the entity types (Standard, Cookie, Nonce) sharing one Identity
// base record, the status transition table, the token sub-record carried by
// every identity, explicit column hydration, and the Gateway persistence
// boundary with in-memory, PostgreSQL and SQLite implementations.
//
// Entities hold state only; the login/logout/reset protocols live in
// cmd/internal/auth.
package identity
