// Package lifecycle drives identities through their states.
//
// It owns registration, verification, password login, token flows (verify,
// reset, identifier update), password changes and single-use nonces. Every
// failure is returned as a typed identity error (NotFound, Expired,
// NotVerified, CredentialMismatch, SecurityIncident, Conflict, Malformed);
// storage failures propagate unmodified.
//
// A password change or reset discards every cookie session of the account.
// Expiry is enforced lazily: an identity past ExpiresOn is flipped to Expired
// and persisted the next time it is used.
package lifecycle
