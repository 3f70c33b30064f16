package identity

import "time"

// Identity is the record shared by every authentication factor.
// Concrete kinds embed it: StandardIdentity, CookieIdentity, NonceIdentity.
//
// Status and token are unexported so their invariants hold:
// - a status change always stamps StatusChangedOn, a same-value set never does;
// - a token is either fully present or fully cleared.
type Identity struct {
	// ID is assigned by the Gateway on first Store; 0 means "not stored".
	ID        int64
	AccountID *int64
	// ParentID links a derived identity (a cookie) to the identity that spawned it.
	ParentID *int64
	Type     Type

	ExpiresOn *time.Time
	LastUsed  *time.Time

	status          Status
	statusChangedOn time.Time
	token           *Token
}

// Entity is implemented by every concrete identity kind.
type Entity interface {
	// Base returns the shared record; mutations through it are visible on the entity.
	Base() *Identity
	// Fingerprint is the one-way digest of the lookup value used as an index key.
	Fingerprint() string
	// LookupKey describes how a Gateway finds this entity's stored record.
	LookupKey() LookupKey
	// Validate reports structural problems that make the entity unstorable.
	Validate() error
	// Apply hydrates the entity from stored column values.
	Apply(v Values) error
	// Values returns the entity as column values for storage.
	Values() Values
}

// LookupKey is the natural key a Gateway matches on.
type LookupKey struct {
	Type        Type
	Fingerprint string
	Identifier  string
	// AccountID is set for cookie lookups.
	AccountID *int64
	// Status, when non-zero, restricts matches to that status.
	Status Status
}

// New returns an empty entity of type t for hydration.
func New(t Type) (Entity, error) {
	switch t {
	case TypeStandard:
		return &StandardIdentity{Identity: Identity{Type: TypeStandard}}, nil
	case TypeCookie:
		return &CookieIdentity{Identity: Identity{Type: TypeCookie}}, nil
	case TypeNonce:
		return &NonceIdentity{Identity: Identity{Type: TypeNonce}}, nil
	}
	return nil, malformed("identity.New", "unknown identity type")
}

func newIdentity(t Type, now time.Time) Identity {
	return Identity{Type: t, status: StatusNew, statusChangedOn: now}
}

// Base returns i itself.
func (i *Identity) Base() *Identity { return i }

// Stored reports whether the identity has been persisted.
func (i *Identity) Stored() bool { return i.ID != 0 }

// Status returns the current lifecycle status.
func (i *Identity) Status() Status { return i.status }

// StatusChangedOn returns when the status last changed value.
func (i *Identity) StatusChangedOn() time.Time { return i.statusChangedOn }

// SetStatus sets the status without consulting the transition table.
// StatusChangedOn is stamped with now only when the value actually changes.
func (i *Identity) SetStatus(s Status, now time.Time) {
	if i.status == s {
		return
	}
	i.status = s
	i.statusChangedOn = now
}

// Transition moves the identity to status to if the transition table allows it.
func (i *Identity) Transition(to Status, now time.Time) error {
	if !to.Valid() || (i.status != 0 && !CanTransition(i.status, to)) {
		return OpError{
			Op:   "identity.Transition",
			Kind: ErrInvalidTransition,
			Msg:  i.status.String() + " -> " + to.String(),
		}
	}
	i.SetStatus(to, now)
	return nil
}

// Expired reports whether the hard deadline has passed at now.
func (i *Identity) Expired(now time.Time) bool {
	return i.ExpiresOn != nil && !i.ExpiresOn.After(now)
}

// ExtendUntil sets the hard deadline.
func (i *Identity) ExtendUntil(t time.Time) {
	i.ExpiresOn = &t
}

// Touch records a successful use at now.
func (i *Identity) Touch(now time.Time) {
	i.LastUsed = &now
}

// Account returns the bound account id.
func (i *Identity) Account() (int64, bool) {
	if i.AccountID == nil {
		return 0, false
	}
	return *i.AccountID, true
}

// BindAccount binds the identity to an account.
func (i *Identity) BindAccount(accountID int64) {
	i.AccountID = &accountID
}

func (i *Identity) validateBase(op string, want Type) error {
	if i.Type != want {
		return invalid(op, "type mismatch")
	}
	if !i.status.Valid() {
		return invalid(op, "invalid status")
	}
	if i.AccountID != nil && *i.AccountID <= 0 {
		return invalid(op, "invalid account_id")
	}
	return nil
}
