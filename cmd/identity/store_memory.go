package identity

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a Gateway kept in process memory.
// It is used by tests and by single-process dev setups without a database.
// It enforces the same (type, fingerprint, identifier) uniqueness as the SQL schemas.
type InMemoryStore struct {
	mu   sync.Mutex
	seq  int64
	rows map[int64]Values
}

// NewInMemoryStore constructs an empty in-memory Gateway.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[int64]Values)}
}

// Len returns the number of stored identities.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Exists reports whether a record with e's LookupKey exists.
func (s *InMemoryStore) Exists(ctx context.Context, e Entity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.findLocked(e.LookupKey())
	return ok, nil
}

// Fetch hydrates e by its LookupKey.
func (s *InMemoryStore) Fetch(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	row, ok := s.findLocked(e.LookupKey())
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return e.Apply(row)
}

// FetchByID hydrates e from the record with id, if it has e's type.
func (s *InMemoryStore) FetchByID(ctx context.Context, e Entity, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	row, ok := s.rows[id]
	if ok {
		row = maps.Clone(row)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if t, _ := row.Int64(ColType); Type(t) != e.Base().Type {
		return nil
	}
	return e.Apply(row)
}

// FetchByToken hydrates e from the record holding an unexpired token for action.
func (s *InMemoryStore) FetchByToken(ctx context.Context, e Entity, tokenValue string, action TokenAction, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := e.Base().Type

	s.mu.Lock()
	var found Values
	for _, id := range s.sortedIDsLocked() {
		row := s.rows[id]
		t, _ := row.Int64(ColType)
		tok, _ := row.String(ColToken)
		act, _ := row.Int64(ColTokenAction)
		exp, _ := row.TimePtr(ColTokenExpiresOn)
		if Type(t) == want && tok != "" && tok == tokenValue && TokenAction(act) == action && exp != nil && exp.After(now) {
			found = maps.Clone(row)
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return nil
	}
	return e.Apply(found)
}

// Store inserts or updates e.
func (s *InMemoryStore) Store(ctx context.Context, e Entity) error {
	const op = "identity.InMemoryStore.Store"

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	row := e.Values()
	base := e.Base()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.rows {
		if id == base.ID {
			continue
		}
		if sameNaturalKey(existing, row) {
			return ConflictError{Op: op, Field: "identifier"}
		}
	}

	if base.ID == 0 {
		s.seq++
		base.ID = s.seq
		row[ColID] = base.ID
	} else if _, ok := s.rows[base.ID]; !ok {
		return IdentityNotFound(op)
	}
	s.rows[base.ID] = row
	return nil
}

// FetchAll returns identities matching c ordered by ID.
func (s *InMemoryStore) FetchAll(ctx context.Context, c Criteria) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var rows []Values
	for _, id := range s.sortedIDsLocked() {
		row := s.rows[id]
		acc, _ := row.Int64Ptr(ColAccountID)
		t, _ := row.Int64(ColType)
		st, _ := row.Int64(ColStatus)
		if c.matches(acc, Type(t), Status(st)) {
			rows = append(rows, maps.Clone(row))
		}
	}
	s.mu.Unlock()

	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		e, err := hydrate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Delete removes e's record.
func (s *InMemoryStore) Delete(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, e.Base().ID)
	return nil
}

func (s *InMemoryStore) findLocked(k LookupKey) (Values, bool) {
	for _, id := range s.sortedIDsLocked() {
		row := s.rows[id]
		if k.matches(row) {
			return maps.Clone(row), true
		}
	}
	return nil, false
}

func (s *InMemoryStore) sortedIDsLocked() []int64 {
	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sameNaturalKey(a, b Values) bool {
	at, _ := a.Int64(ColType)
	bt, _ := b.Int64(ColType)
	af, _ := a.String(ColFingerprint)
	bf, _ := b.String(ColFingerprint)
	ai, _ := a.String(ColIdentifier)
	bi, _ := b.String(ColIdentifier)
	return at == bt && af == bf && ai == bi
}
