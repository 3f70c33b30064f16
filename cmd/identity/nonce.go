package identity

import (
	"strings"
	"time"

	"warden/cmd/security/token"
)

// NonceIdentity is a single-use credential (e.g. a magic login link).
// It shares the cookie's key shape but is consumed exactly once.
type NonceIdentity struct {
	Identity
	KeyPair

	// Identifier is the random public half of the nonce.
	Identifier string
}

// NewNonce returns a New nonce identity for accountID.
func NewNonce(accountID int64, now time.Time) *NonceIdentity {
	n := &NonceIdentity{Identity: newIdentity(TypeNonce, now)}
	n.BindAccount(accountID)
	return n
}

// GenerateIdentifier assigns a fresh random identifier and returns it.
func (n *NonceIdentity) GenerateIdentifier(nBytes int) (string, error) {
	v, err := token.NewHex(nBytes)
	if err != nil {
		return "", err
	}
	n.Identifier = v
	return v, nil
}

// Fingerprint returns the SHA-384 hex digest of the identifier.
func (n *NonceIdentity) Fingerprint() string { return token.Fingerprint(n.Identifier) }

// LookupKey matches active nonces only, so a consumed nonce is not found.
func (n *NonceIdentity) LookupKey() LookupKey {
	return LookupKey{
		Type:        TypeNonce,
		Fingerprint: n.Fingerprint(),
		Identifier:  n.Identifier,
		Status:      StatusActive,
	}
}

// Validate checks the entity can be stored.
func (n *NonceIdentity) Validate() error {
	const op = "identity.NonceIdentity.Validate"

	if err := n.validateBase(op, TypeNonce); err != nil {
		return err
	}
	if strings.TrimSpace(n.Identifier) == "" {
		return invalid(op, "identifier required")
	}
	if len(n.Hash) != token.DigestLen {
		return invalid(op, "key hash required")
	}
	return nil
}

// Apply hydrates from stored column values.
func (n *NonceIdentity) Apply(v Values) error {
	if err := v.only(baseColumns, ColIdentifier, ColHash, ColFingerprint); err != nil {
		return err
	}
	if err := n.applyBase(v); err != nil {
		return err
	}
	var err error
	if n.Identifier, err = v.String(ColIdentifier); err != nil {
		return err
	}
	if n.Hash, err = v.String(ColHash); err != nil {
		return err
	}
	n.Key = ""
	return nil
}

// Values returns the stored column values.
func (n *NonceIdentity) Values() Values {
	v := n.baseValues()
	v[ColIdentifier] = n.Identifier
	v[ColHash] = n.Hash
	v[ColFingerprint] = n.Fingerprint()
	return v
}
