package identity

import (
	"fmt"
	"strings"
)

// Type identifies the kind of authentication factor.
type Type int

const (
	TypeStandard Type = 1
	TypeCookie   Type = 2
	TypeNonce    Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeStandard:
		return "standard"
	case TypeCookie:
		return "cookie"
	case TypeNonce:
		return "nonce"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeStandard, TypeCookie, TypeNonce:
		return true
	}
	return false
}

// Status is the lifecycle state of an identity.
// Values are powers of two so stores can filter by mask, but an identity
// only ever holds exactly one of them.
type Status int

const (
	StatusNew       Status = 1
	StatusActive    Status = 2
	StatusDiscarded Status = 4
	StatusBlocked   Status = 8
	StatusExpired   Status = 16
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusActive:
		return "active"
	case StatusDiscarded:
		return "discarded"
	case StatusBlocked:
		return "blocked"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Valid reports whether s is exactly one known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusActive, StatusDiscarded, StatusBlocked, StatusExpired:
		return true
	}
	return false
}

// Alive reports whether s is New or Active.
func (s Status) Alive() bool { return s == StatusNew || s == StatusActive }

// ParseStatus parses the String form of a status.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "new":
		return StatusNew, nil
	case "active":
		return StatusActive, nil
	case "discarded":
		return StatusDiscarded, nil
	case "blocked":
		return StatusBlocked, nil
	case "expired":
		return StatusExpired, nil
	}
	return 0, malformed("identity.ParseStatus", "unknown status")
}

// transitions lists the allowed targets per source status.
// Discarded, Blocked and Expired are terminal.
var transitions = map[Status][]Status{
	StatusNew:    {StatusActive, StatusDiscarded, StatusBlocked, StatusExpired},
	StatusActive: {StatusDiscarded, StatusBlocked, StatusExpired},
}

// CanTransition reports whether an identity in from may move to to.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TokenAction names what a token authorizes.
type TokenAction int

const (
	ActionNone   TokenAction = 0
	ActionVerify TokenAction = 1
	ActionReset  TokenAction = 2
	ActionUpdate TokenAction = 3
)

func (a TokenAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionVerify:
		return "verify"
	case ActionReset:
		return "reset"
	case ActionUpdate:
		return "update"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Valid reports whether a is a known action.
func (a TokenAction) Valid() bool {
	switch a {
	case ActionNone, ActionVerify, ActionReset, ActionUpdate:
		return true
	}
	return false
}
