package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Gateway over an embedded SQLite database.
// Timestamps are stored as INTEGER unix microseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
// ":memory:" yields a private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("identity: empty sqlite path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewSQLiteStore wraps db. The caller owns db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil sqlite db")
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate creates the identities table if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, SQLiteSchemaSQL)
	return err
}

// Exists reports whether a record with e's LookupKey exists.
func (s *SQLiteStore) Exists(ctx context.Context, e Entity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	w, ok := lookupWhere(e.LookupKey(), sqlitePlaceholder)
	if !ok {
		return false, nil
	}
	var found int64
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+IdentitiesTable+` WHERE `+w.String()+`)`,
		w.args...,
	).Scan(&found)
	return found == 1, err
}

// Fetch hydrates e by its LookupKey.
func (s *SQLiteStore) Fetch(ctx context.Context, e Entity) error {
	w, ok := lookupWhere(e.LookupKey(), sqlitePlaceholder)
	if !ok {
		return ctx.Err()
	}
	return s.fetchOne(ctx, e, w)
}

// FetchByID hydrates e from the record with id, if it has e's type.
func (s *SQLiteStore) FetchByID(ctx context.Context, e Entity, id int64) error {
	w := newWhere(sqlitePlaceholder).
		eq(ColID, id).
		eq(ColType, int64(e.Base().Type))
	return s.fetchOne(ctx, e, w)
}

// FetchByToken hydrates e from the record holding an unexpired token for action.
func (s *SQLiteStore) FetchByToken(ctx context.Context, e Entity, tokenValue string, action TokenAction, now time.Time) error {
	w := newWhere(sqlitePlaceholder).
		eq(ColType, int64(e.Base().Type)).
		eq(ColToken, tokenValue).
		eq(ColTokenAction, int64(action)).
		cond(ColTokenExpiresOn+" > ", now.UTC().UnixMicro())
	return s.fetchOne(ctx, e, w)
}

func (s *SQLiteStore) fetchOne(ctx context.Context, e Entity, w *sqlWhere) error {
	rows, err := s.query(ctx, `WHERE `+w.String()+` ORDER BY id LIMIT 1`, w.args...)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return e.Apply(rows[0])
}

// Store inserts e when it has no ID (assigning one) and updates it otherwise.
func (s *SQLiteStore) Store(ctx context.Context, e Entity) error {
	const op = "identity.SQLiteStore.Store"

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	base := e.Base()
	row := e.Values()

	if base.ID == 0 {
		q, args := insertSQL(IdentitiesTable, row, sqlitePlaceholder, unixMicroValue)
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return sqliteMapWriteError(op, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		base.ID = id
		return nil
	}

	q, args := updateSQL(IdentitiesTable, base.ID, row, sqlitePlaceholder, unixMicroValue)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return sqliteMapWriteError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return IdentityNotFound(op)
	}
	return nil
}

// FetchAll returns identities matching c ordered by ID.
func (s *SQLiteStore) FetchAll(ctx context.Context, c Criteria) ([]Entity, error) {
	w := criteriaWhere(c, sqlitePlaceholder)
	rows, err := s.query(ctx, `WHERE `+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		ent, err := hydrate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

// Delete removes e's record.
func (s *SQLiteStore) Delete(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+IdentitiesTable+` WHERE id = ?`, e.Base().ID)
	return err
}

// query selects every column and returns rows keyed by column name.
func (s *SQLiteStore) query(ctx context.Context, tail string, args ...any) ([]Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns()+` FROM `+IdentitiesTable+` `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Values
	for rows.Next() {
		dest := make([]any, len(Columns))
		ptrs := make([]any, len(Columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		v := make(Values, len(Columns))
		for i, c := range Columns {
			v[c] = dest[i]
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func sqliteMapWriteError(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ConflictError{Op: op, Field: "identifier"}
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return IdentityNotFound(op)
		}
	}
	switch msg := err.Error(); {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ConflictError{Op: op, Field: "identifier"}
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return IdentityNotFound(op)
	}
	return err
}
