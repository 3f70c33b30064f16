package identity

import (
	"encoding/hex"
	"maps"
	"strings"
	"time"

	"warden/cmd/security/token"
)

const (
	// TokenLen is the hex length of an identity token (16 random bytes).
	TokenLen = 32

	tokenBytes = TokenLen / 2
)

// Token is a short-lived random value bound to one action.
type Token struct {
	Value     string
	Action    TokenAction
	ExpiresOn time.Time
	// Payload carries opaque data for multi-step flows (e.g. the new identifier).
	Payload map[string]string
}

// Token returns a copy of the current token, if any.
func (i *Identity) Token() (Token, bool) {
	if i.token == nil {
		return Token{}, false
	}
	out := *i.token
	out.Payload = maps.Clone(i.token.Payload)
	return out, true
}

// SetToken assigns all token fields at once.
// value must be exactly TokenLen hex characters; it is stored lower-cased.
func (i *Identity) SetToken(value string, action TokenAction, expiresOn time.Time, payload map[string]string) error {
	const op = "identity.SetToken"

	value = strings.ToLower(strings.TrimSpace(value))
	if err := ValidateTokenValue(value); err != nil {
		return err
	}
	if action == ActionNone || !action.Valid() {
		return invalid(op, "token action required")
	}
	if expiresOn.IsZero() {
		return invalid(op, "token expiry required")
	}

	i.token = &Token{
		Value:     value,
		Action:    action,
		ExpiresOn: expiresOn,
		Payload:   maps.Clone(payload),
	}
	return nil
}

// GenerateToken assigns a fresh random token for action, valid for lifetime from now.
// It returns the token value.
func (i *Identity) GenerateToken(action TokenAction, lifetime time.Duration, now time.Time, payload map[string]string) (string, error) {
	if lifetime <= 0 {
		return "", invalid("identity.GenerateToken", "lifetime must be positive")
	}
	v, err := token.NewHex(tokenBytes)
	if err != nil {
		return "", err
	}
	if err := i.SetToken(v, action, now.Add(lifetime), payload); err != nil {
		return "", err
	}
	return v, nil
}

// ClearToken removes token, action, expiry and payload together.
func (i *Identity) ClearToken() {
	i.token = nil
}

// TokenValid reports whether the identity carries an unexpired token for action.
func (i *Identity) TokenValid(action TokenAction, now time.Time) bool {
	return i.token != nil && i.token.Action == action && i.token.ExpiresOn.After(now)
}

// ValidateTokenValue checks the token format without assigning it.
func ValidateTokenValue(value string) error {
	if len(value) != TokenLen {
		return malformed("identity.SetToken", "token must be 32 hex characters")
	}
	if _, err := hex.DecodeString(value); err != nil {
		return malformed("identity.SetToken", "token must be 32 hex characters")
	}
	return nil
}
