package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// - Kind MUST be one of the sentinel kinds when applicable (ErrInvalidInput, ErrExpired, ...).
// - Msg may include human-readable context; do not include secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness/constraint conflict for a specific logical field.
// Field should be a stable logical name: "identifier", "series", "token", ...
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// Resources reported by NotFoundError.
const (
	ResourceIdentity = "identity"
	ResourceToken    = "token"
	ResourceAccount  = "account"
)

// NotFoundError reports a missing identity, token or account.
// A record whose status or token does not match the lookup is also "not found".
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// Security incident reasons.
const (
	ReasonCompromisedCookie = "compromised_cookie"
	ReasonDenialOfService   = "denial_of_service"
)

// SecurityError reports a failure whose pattern is itself suspicious.
// Callers should surface it as a generic "access denied" without detail.
type SecurityError struct {
	Op     string
	Reason string
}

func (e SecurityError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrSecurityIncident, e.Reason)
}

func (e SecurityError) Unwrap() error { return ErrSecurityIncident }

// IdentityNotFound builds the NotFoundError for a missing identity.
func IdentityNotFound(op string) error { return NotFoundError{Op: op, Resource: ResourceIdentity} }

// TokenNotFound builds the NotFoundError for an unknown or expired token.
func TokenNotFound(op string) error { return NotFoundError{Op: op, Resource: ResourceToken} }

// AccountNotFound builds the NotFoundError for an identity without an account.
func AccountNotFound(op string) error { return NotFoundError{Op: op, Resource: ResourceAccount} }

// IdentityExpired builds the error for an identity past its deadline.
func IdentityExpired(op string) error { return OpError{Op: op, Kind: ErrExpired} }

// IdentityNotVerified builds the error for an action attempted on a New identity.
func IdentityNotVerified(op string) error { return OpError{Op: op, Kind: ErrNotVerified} }

// PasswordMismatch builds the error for a wrong password or key.
func PasswordMismatch(op string) error { return OpError{Op: op, Kind: ErrCredentialMismatch} }

// CompromisedCookie builds the error for a stale cookie key presented for a live series.
func CompromisedCookie(op string) error { return SecurityError{Op: op, Reason: ReasonCompromisedCookie} }

// DenialOfServiceAttempt builds the error for a cookie naming an unknown series.
func DenialOfServiceAttempt(op string) error {
	return SecurityError{Op: op, Reason: ReasonDenialOfService}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTokenNotFound reports whether err is a NotFoundError for a token.
func IsTokenNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf) && nf.Resource == ResourceToken
}

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsExpired reports whether err represents ErrExpired.
func IsExpired(err error) bool { return errors.Is(err, ErrExpired) }

// IsNotVerified reports whether err represents ErrNotVerified.
func IsNotVerified(err error) bool { return errors.Is(err, ErrNotVerified) }

// IsCredentialMismatch reports whether err represents ErrCredentialMismatch.
func IsCredentialMismatch(err error) bool { return errors.Is(err, ErrCredentialMismatch) }

// IsSecurityIncident reports whether err represents ErrSecurityIncident.
func IsSecurityIncident(err error) bool { return errors.Is(err, ErrSecurityIncident) }

// IsMalformed reports whether err represents ErrMalformed.
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformed) }

// IsCompromisedCookie reports whether err is a SecurityError for a compromised cookie.
func IsCompromisedCookie(err error) bool { return securityReason(err) == ReasonCompromisedCookie }

// IsDenialOfService reports whether err is a SecurityError for an unknown cookie series.
func IsDenialOfService(err error) bool { return securityReason(err) == ReasonDenialOfService }

func securityReason(err error) string {
	var se SecurityError
	if !errors.As(err, &se) {
		return ""
	}
	return se.Reason
}

func malformed(op, msg string) error {
	return OpError{Op: op, Kind: ErrMalformed, Msg: msg}
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}
