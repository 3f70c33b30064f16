package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to caller outcomes).
var (
	ErrInvalidInput       = errors.New("invalid_input")
	ErrNotFound           = errors.New("not_found")
	ErrExpired            = errors.New("expired")
	ErrNotVerified        = errors.New("not_verified")
	ErrCredentialMismatch = errors.New("credential_mismatch")
	ErrSecurityIncident   = errors.New("security_incident")
	ErrConflict           = errors.New("conflict")
	ErrMalformed          = errors.New("malformed")
	ErrInvalidTransition  = errors.New("invalid_transition")
)
