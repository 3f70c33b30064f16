package audit

import (
	"time"

	"warden/cmd/security/token"
)

// Level grades an event.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Actions emitted by the auth services.
const (
	ActionLookupFailed       = "identity.lookup.failed"
	ActionCredentialMismatch = "identity.credential.mismatch"
	ActionNotVerified        = "identity.not_verified"
	ActionIdentityExpired    = "identity.expired"
	ActionLoginSuccess       = "identity.login.success"
	ActionRegistered         = "identity.registered"
	ActionCookieIssued       = "identity.cookie.issued"
	ActionCookieRenewed      = "identity.cookie.renewed"
	ActionCookieExpired      = "identity.cookie.expired"
	ActionCookieCompromised  = "identity.cookie.compromised"
	ActionCookieUnknown      = "identity.cookie.unknown_series"
	ActionLogout             = "identity.logout"
	ActionLogoutAll          = "identity.logout_all"
	ActionPasswordChanged    = "identity.password.changed"
	ActionPasswordRehashed   = "identity.password.rehashed"
	ActionTokenIssued        = "identity.token.issued"
	ActionTokenVerified      = "identity.token.verified"
	ActionIdentifierChanged  = "identity.identifier.changed"
	ActionNonceIssued        = "identity.nonce.issued"
	ActionNonceConsumed      = "identity.nonce.consumed"
)

// Context describes what the event is about. Secrets appear only as digests.
type Context struct {
	Identifier  string `json:"identifier,omitempty"`
	KeyDigest   string `json:"key_digest,omitempty"`
	TokenDigest string `json:"token_digest,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Account names the account and identity involved, when known.
type Account struct {
	AccountID  int64 `json:"account_id,omitempty"`
	IdentityID int64 `json:"identity_id,omitempty"`
}

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Action    string    `json:"action"`
	Context   Context   `json:"context"`
	Account   Account   `json:"account"`
	Request   Request   `json:"request"`
	CreatedAt time.Time `json:"created_at"`
}

// New starts an event.
func New(level Level, action string) Event {
	return Event{Level: level, Action: action}
}

// WithIdentifier sets the public identifier (email, series, nonce identifier).
func (e Event) WithIdentifier(v string) Event {
	e.Context.Identifier = v
	return e
}

// WithKey records the digest of a presented key.
func (e Event) WithKey(key string) Event {
	if key != "" {
		e.Context.KeyDigest = token.HashKeyHex(key)
	}
	return e
}

// WithToken records the digest of a token value.
func (e Event) WithToken(v string) Event {
	if v != "" {
		e.Context.TokenDigest = token.HashSHA256Hex(v)
	}
	return e
}

// WithReason sets a short machine-readable reason.
func (e Event) WithReason(r string) Event {
	e.Context.Reason = r
	return e
}

// WithAccount sets the account and identity ids.
func (e Event) WithAccount(accountID, identityID int64) Event {
	e.Account = Account{AccountID: accountID, IdentityID: identityID}
	return e
}
