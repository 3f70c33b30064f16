package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Gateway over PostgreSQL.
//
// Notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Rows are read with pgx.RowToMap and hydrated through Entity.Apply.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "warden").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "warden",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Schema returns the Postgres schema the store writes to.
func (s *PostgresStore) Schema() string { return s.schema }

// Migrate creates the identities table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchemaSQL(s.schema))
	return err
}

func (s *PostgresStore) table() string { return pgIdent(s.schema, IdentitiesTable) }

// Exists reports whether a record with e's LookupKey exists.
func (s *PostgresStore) Exists(ctx context.Context, e Entity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	w, ok := lookupWhere(e.LookupKey(), pgPlaceholder)
	if !ok {
		return false, nil
	}
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table()+` WHERE `+w.String()+`)`,
		w.args...,
	).Scan(&found)
	return found, err
}

// Fetch hydrates e by its LookupKey.
func (s *PostgresStore) Fetch(ctx context.Context, e Entity) error {
	w, ok := lookupWhere(e.LookupKey(), pgPlaceholder)
	if !ok {
		return ctx.Err()
	}
	return s.fetchOne(ctx, e, w)
}

// FetchByID hydrates e from the record with id, if it has e's type.
func (s *PostgresStore) FetchByID(ctx context.Context, e Entity, id int64) error {
	w := newWhere(pgPlaceholder).
		eq(ColID, id).
		eq(ColType, int64(e.Base().Type))
	return s.fetchOne(ctx, e, w)
}

// FetchByToken hydrates e from the record holding an unexpired token for action.
func (s *PostgresStore) FetchByToken(ctx context.Context, e Entity, tokenValue string, action TokenAction, now time.Time) error {
	w := newWhere(pgPlaceholder).
		eq(ColType, int64(e.Base().Type)).
		eq(ColToken, tokenValue).
		eq(ColTokenAction, int64(action)).
		cond(ColTokenExpiresOn+" > ", now.UTC())
	return s.fetchOne(ctx, e, w)
}

func (s *PostgresStore) fetchOne(ctx context.Context, e Entity, w *sqlWhere) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns()+` FROM `+s.table()+` WHERE `+w.String()+` ORDER BY id LIMIT 1`,
		w.args...,
	)
	if err != nil {
		return err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return err
	}
	if len(maps) == 0 {
		return nil
	}
	return e.Apply(Values(maps[0]))
}

// Store inserts e when it has no ID (assigning one) and updates it otherwise.
func (s *PostgresStore) Store(ctx context.Context, e Entity) error {
	const op = "identity.PostgresStore.Store"

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	base := e.Base()
	row := e.Values()

	if base.ID == 0 {
		q, args := insertSQL(s.table(), row, pgPlaceholder, identityValue)
		var id int64
		if err := s.pool.QueryRow(ctx, q+` RETURNING id`, args...).Scan(&id); err != nil {
			return pgMapWriteError(op, err)
		}
		base.ID = id
		return nil
	}

	q, args := updateSQL(s.table(), base.ID, row, pgPlaceholder, identityValue)
	ct, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return pgMapWriteError(op, err)
	}
	if ct.RowsAffected() == 0 {
		return IdentityNotFound(op)
	}
	return nil
}

// FetchAll returns identities matching c ordered by ID.
func (s *PostgresStore) FetchAll(ctx context.Context, c Criteria) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := criteriaWhere(c, pgPlaceholder)
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns()+` FROM `+s.table()+` WHERE `+w.String()+` ORDER BY id`,
		w.args...,
	)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(maps))
	for _, m := range maps {
		ent, err := hydrate(Values(m))
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

// Delete removes e's record.
func (s *PostgresStore) Delete(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, e.Base().ID)
	return err
}

// ---- helpers ----

func pgMapWriteError(op string, err error) error {
	if field, ok := pgClassifyUniqueViolation(err); ok {
		return ConflictError{Op: op, Field: field}
	}
	if pgIsForeignKeyViolation(err) {
		return IdentityNotFound(op)
	}
	return err
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIdent1(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch {
	case c == "uq_identities_type_fingerprint_identifier":
		return "identifier", true
	case strings.Contains(c, "identifier"), strings.Contains(c, "fingerprint"):
		return "identifier", true
	default:
		return "unique", true
	}
}
