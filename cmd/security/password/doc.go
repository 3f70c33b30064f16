// Package password provides password hashing and verification for warden.
//
// It implements Argon2id hashing using a PHC-like encoded string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - Password policy validation
// - Strict hash decoding and verification with anti-DoS bounds
// - Rehash detection when the configured cost changes
// - Verification of legacy bcrypt hashes, which always report NeedsRehash
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Comparisons are constant time (crypto/subtle, or bcrypt's own comparison).
package password
