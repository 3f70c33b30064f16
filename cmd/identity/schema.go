package identity

import "fmt"

// IdentitiesTable is the table every store persists identities in.
const IdentitiesTable = "identities"

// PostgresSchemaSQL returns the DDL for the identities table in schema.
// The unique constraint on (type, fingerprint, identifier) backs the
// Exists-then-Store race: a losing writer gets a ConflictError.
func PostgresSchemaSQL(schema string) string {
	t := pgIdent(schema, IdentitiesTable)
	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[2]s;

CREATE TABLE IF NOT EXISTS %[1]s (
  id                BIGSERIAL PRIMARY KEY,
  account_id        BIGINT NULL,
  parent_id         BIGINT NULL REFERENCES %[1]s(id) ON DELETE SET NULL,
  type              SMALLINT NOT NULL,
  status            SMALLINT NOT NULL,
  status_changed_on TIMESTAMPTZ NOT NULL,
  expires_on        TIMESTAMPTZ NULL,
  last_used         TIMESTAMPTZ NULL,
  token             TEXT NULL,
  token_action      SMALLINT NOT NULL DEFAULT 0,
  token_expires_on  TIMESTAMPTZ NULL,
  token_payload     TEXT NULL,
  fingerprint       TEXT NOT NULL,
  identifier        TEXT NOT NULL,
  hash              TEXT NOT NULL,

  CONSTRAINT uq_identities_type_fingerprint_identifier UNIQUE (type, fingerprint, identifier),
  CONSTRAINT chk_identities_type CHECK (type IN (1, 2, 4)),
  CONSTRAINT chk_identities_status CHECK (status IN (1, 2, 4, 8, 16)),
  CONSTRAINT chk_identities_token_len CHECK (token IS NULL OR char_length(token) = 32),
  CONSTRAINT chk_identities_fingerprint_len CHECK (char_length(fingerprint) = 96)
);

CREATE INDEX IF NOT EXISTS idx_identities_account_id ON %[1]s (account_id);
CREATE INDEX IF NOT EXISTS idx_identities_token ON %[1]s (token) WHERE token IS NOT NULL;
`, t, pgIdent1(schema))
}

// SQLiteSchemaSQL is the DDL for the identities table on SQLite.
// Timestamps are INTEGER unix microseconds.
const SQLiteSchemaSQL = `
CREATE TABLE IF NOT EXISTS identities (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  account_id        INTEGER NULL,
  parent_id         INTEGER NULL REFERENCES identities(id) ON DELETE SET NULL,
  type              INTEGER NOT NULL CHECK (type IN (1, 2, 4)),
  status            INTEGER NOT NULL CHECK (status IN (1, 2, 4, 8, 16)),
  status_changed_on INTEGER NOT NULL,
  expires_on        INTEGER NULL,
  last_used         INTEGER NULL,
  token             TEXT NULL CHECK (token IS NULL OR length(token) = 32),
  token_action      INTEGER NOT NULL DEFAULT 0,
  token_expires_on  INTEGER NULL,
  token_payload     TEXT NULL,
  fingerprint       TEXT NOT NULL,
  identifier        TEXT NOT NULL,
  hash              TEXT NOT NULL,
  UNIQUE (type, fingerprint, identifier)
);

CREATE INDEX IF NOT EXISTS idx_identities_account_id ON identities (account_id);
CREATE INDEX IF NOT EXISTS idx_identities_token ON identities (token);
`
