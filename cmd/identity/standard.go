package identity

import (
	"strings"
	"time"

	"warden/cmd/security/token"
)

// PasswordHasher computes a self-describing password hash.
// password.Config satisfies it.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// StandardIdentity is a password credential keyed by a unique identifier (e.g. email).
type StandardIdentity struct {
	Identity

	// Identifier is always stored normalized; use SetIdentifier.
	Identifier string
	// Hash is the persisted password hash.
	Hash string

	// password is held only until the hash is computed; it is never persisted.
	password    string
	hashPending bool
}

// NewStandard returns a New standard identity for identifier.
func NewStandard(identifier string, now time.Time) *StandardIdentity {
	s := &StandardIdentity{Identity: newIdentity(TypeStandard, now)}
	s.SetIdentifier(identifier)
	return s
}

// SetIdentifier stores the normalized identifier.
func (s *StandardIdentity) SetIdentifier(v string) {
	s.Identifier = NormalizeIdentifier(v)
}

// Fingerprint returns the SHA-384 hex digest of the identifier.
func (s *StandardIdentity) Fingerprint() string { return token.Fingerprint(s.Identifier) }

// LookupKey matches on fingerprint, identifier and type.
func (s *StandardIdentity) LookupKey() LookupKey {
	return LookupKey{Type: TypeStandard, Fingerprint: s.Fingerprint(), Identifier: s.Identifier}
}

// SetPassword holds plain for a later RehashPassword. The stored Hash is untouched.
func (s *StandardIdentity) SetPassword(plain string) {
	s.password = plain
	s.hashPending = plain != ""
}

// HashPending reports whether a password was set but not hashed yet.
func (s *StandardIdentity) HashPending() bool { return s.hashPending }

// RehashPassword computes Hash from the held password with h and forgets the plaintext.
func (s *StandardIdentity) RehashPassword(h PasswordHasher) error {
	const op = "identity.RehashPassword"

	if s.password == "" {
		return invalid(op, "no password held")
	}
	hash, err := h.Hash(s.password)
	if err != nil {
		return err
	}
	s.Hash = hash
	s.ClearPassword()
	return nil
}

// ClearPassword drops the held plaintext.
func (s *StandardIdentity) ClearPassword() {
	s.password = ""
	s.hashPending = false
}

// Validate checks the entity can be stored.
func (s *StandardIdentity) Validate() error {
	const op = "identity.StandardIdentity.Validate"

	if err := s.validateBase(op, TypeStandard); err != nil {
		return err
	}
	if s.Identifier == "" || s.Identifier != NormalizeIdentifier(s.Identifier) {
		return invalid(op, "identifier required")
	}
	if s.hashPending {
		return invalid(op, "password set but not hashed")
	}
	if strings.TrimSpace(s.Hash) == "" {
		return invalid(op, "hash required")
	}
	return nil
}

// Apply hydrates from stored column values.
func (s *StandardIdentity) Apply(v Values) error {
	if err := v.only(baseColumns, ColIdentifier, ColHash, ColFingerprint); err != nil {
		return err
	}
	if err := s.applyBase(v); err != nil {
		return err
	}
	var err error
	if s.Identifier, err = v.String(ColIdentifier); err != nil {
		return err
	}
	if s.Hash, err = v.String(ColHash); err != nil {
		return err
	}
	return nil
}

// Values returns the stored column values.
func (s *StandardIdentity) Values() Values {
	v := s.baseValues()
	v[ColIdentifier] = s.Identifier
	v[ColHash] = s.Hash
	v[ColFingerprint] = s.Fingerprint()
	return v
}
