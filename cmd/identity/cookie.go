package identity

import (
	"strings"
	"time"

	"warden/cmd/security/token"
)

// CookieIdentity is one persistent-login ("remember me") session.
// Series is stable for the session's lifetime; the key rotates on every use.
type CookieIdentity struct {
	Identity
	KeyPair

	Series string
}

// NewCookie returns a New cookie identity spawned by parent.
func NewCookie(parent *StandardIdentity, now time.Time) *CookieIdentity {
	c := &CookieIdentity{Identity: newIdentity(TypeCookie, now)}
	if parent != nil {
		if acc, ok := parent.Account(); ok {
			c.BindAccount(acc)
		}
		if parent.ID != 0 {
			pid := parent.ID
			c.ParentID = &pid
		}
	}
	return c
}

// Fingerprint returns the SHA-384 hex digest of the series.
func (c *CookieIdentity) Fingerprint() string { return token.Fingerprint(c.Series) }

// LookupKey matches on account, series, fingerprint and type.
func (c *CookieIdentity) LookupKey() LookupKey {
	return LookupKey{
		Type:        TypeCookie,
		Fingerprint: c.Fingerprint(),
		Identifier:  c.Series,
		AccountID:   c.AccountID,
	}
}

// Validate checks the entity can be stored.
func (c *CookieIdentity) Validate() error {
	const op = "identity.CookieIdentity.Validate"

	if err := c.validateBase(op, TypeCookie); err != nil {
		return err
	}
	if c.AccountID == nil {
		return AccountNotFound(op)
	}
	if strings.TrimSpace(c.Series) == "" {
		return invalid(op, "series required")
	}
	if len(c.Hash) != token.DigestLen {
		return invalid(op, "key hash required")
	}
	return nil
}

// Apply hydrates from stored column values. The series is stored in the identifier column.
func (c *CookieIdentity) Apply(v Values) error {
	if err := v.only(baseColumns, ColIdentifier, ColHash, ColFingerprint); err != nil {
		return err
	}
	if err := c.applyBase(v); err != nil {
		return err
	}
	var err error
	if c.Series, err = v.String(ColIdentifier); err != nil {
		return err
	}
	if c.Hash, err = v.String(ColHash); err != nil {
		return err
	}
	c.Key = ""
	return nil
}

// Values returns the stored column values.
func (c *CookieIdentity) Values() Values {
	v := c.baseValues()
	v[ColIdentifier] = c.Series
	v[ColHash] = c.Hash
	v[ColFingerprint] = c.Fingerprint()
	return v
}
