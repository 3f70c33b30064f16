package identity

import (
	"context"
	"time"
)

// Criteria selects identities for FetchAll. Empty slices match everything.
type Criteria struct {
	AccountID int64
	Types     []Type
	Statuses  []Status
}

func (c Criteria) matches(accountID *int64, t Type, s Status) bool {
	if accountID == nil || *accountID != c.AccountID {
		return false
	}
	if len(c.Types) > 0 && !containsType(c.Types, t) {
		return false
	}
	if len(c.Statuses) > 0 && !containsStatus(c.Statuses, s) {
		return false
	}
	return true
}

// Gateway is the identity persistence boundary.
//
// Contract:
//   - Fetch/FetchByID/FetchByToken hydrate e in place. When nothing matches they
//     return nil and leave e.Base().ID at 0; absence is not an error here.
//   - Store inserts when e.Base().ID is 0 (assigning the ID) and updates otherwise.
//     A natural-key collision is reported as ConflictError.
//   - FetchAll returns identities ordered by ID ascending.
//   - Storage failures are returned unmodified.
type Gateway interface {
	// Exists reports whether a record with e's LookupKey exists.
	Exists(ctx context.Context, e Entity) (bool, error)
	// Fetch hydrates e by its LookupKey.
	Fetch(ctx context.Context, e Entity) error
	// FetchByID hydrates e from the record with id, if it has e's type.
	FetchByID(ctx context.Context, e Entity, id int64) error
	// FetchByToken hydrates e from the record of e's type holding tokenValue
	// for action with a token expiry after now.
	FetchByToken(ctx context.Context, e Entity, tokenValue string, action TokenAction, now time.Time) error
	// Store persists e.
	Store(ctx context.Context, e Entity) error
	// FetchAll returns all identities matching c.
	FetchAll(ctx context.Context, c Criteria) ([]Entity, error)
	// Delete hard-deletes e's record. It is not part of the modelled lifecycle.
	Delete(ctx context.Context, e Entity) error
}

func containsType(list []Type, t Type) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func containsStatus(list []Status, s Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// hydrate builds an entity of the row's type and applies the row to it.
func hydrate(row Values) (Entity, error) {
	t, err := row.Int64(ColType)
	if err != nil {
		return nil, err
	}
	e, err := New(Type(t))
	if err != nil {
		return nil, err
	}
	if err := e.Apply(row); err != nil {
		return nil, err
	}
	return e, nil
}

// RequiresAccount reports whether the key only matches records of its account.
func (k LookupKey) RequiresAccount() bool { return k.Type == TypeCookie }

func (k LookupKey) matches(row Values) bool {
	t, _ := row.Int64(ColType)
	fp, _ := row.String(ColFingerprint)
	ident, _ := row.String(ColIdentifier)
	if Type(t) != k.Type || fp != k.Fingerprint || ident != k.Identifier {
		return false
	}
	if k.RequiresAccount() {
		acc, _ := row.Int64Ptr(ColAccountID)
		if k.AccountID == nil || acc == nil || *acc != *k.AccountID {
			return false
		}
	}
	if k.Status != 0 {
		s, _ := row.Int64(ColStatus)
		if Status(s) != k.Status {
			return false
		}
	}
	return true
}
