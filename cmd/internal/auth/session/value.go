package session

import (
	"strconv"
	"strings"

	"warden/cmd/identity"
)

// Value is the client-side cookie content: the account, the series and the current key.
type Value struct {
	AccountID int64
	Series    string
	Key       string
}

// ValueOf returns the client value for a freshly issued or renewed cookie.
func ValueOf(c *identity.CookieIdentity) Value {
	acc, _ := c.Account()
	return Value{AccountID: acc, Series: c.Series, Key: c.Key}
}

// Encode collapses v into "account:series:key".
func (v Value) Encode() string {
	return strconv.FormatInt(v.AccountID, 10) + ":" + v.Series + ":" + v.Key
}

// ParseValue parses the Encode form. Any deviation is ErrMalformed.
func ParseValue(raw string) (Value, error) {
	const op = "session.ParseValue"

	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return Value{}, identity.OpError{Op: op, Kind: identity.ErrMalformed, Msg: "expected account:series:key"}
	}
	acc, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || acc <= 0 {
		return Value{}, identity.OpError{Op: op, Kind: identity.ErrMalformed, Msg: "invalid account"}
	}
	if parts[1] == "" || parts[2] == "" {
		return Value{}, identity.OpError{Op: op, Kind: identity.ErrMalformed, Msg: "empty series or key"}
	}
	return Value{AccountID: acc, Series: parts[1], Key: parts[2]}, nil
}
