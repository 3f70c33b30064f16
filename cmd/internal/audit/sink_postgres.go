package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink appends events to <schema>.audit_log.
// The pgx pool is owned by the caller.
type PostgresSink struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresSink returns a sink writing to schema.audit_log.
func NewPostgresSink(pool *pgxpool.Pool, schema string) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("audit: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "warden"
	}
	return &PostgresSink{pool: pool, schema: schema}, nil
}

func (s *PostgresSink) table() string {
	return pgx.Identifier{s.schema, "audit_log"}.Sanitize()
}

// PostgresSchemaSQL returns the DDL for the audit_log table in schema.
func PostgresSchemaSQL(schema string) string {
	t := pgx.Identifier{schema, "audit_log"}.Sanitize()
	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[2]s;

CREATE TABLE IF NOT EXISTS %[1]s (
  id          TEXT PRIMARY KEY,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  level       TEXT NOT NULL,
  action      TEXT NOT NULL,
  account_id  BIGINT NULL,
  identity_id BIGINT NULL,
  request_id  TEXT NULL,
  ip          TEXT NULL,
  user_agent  TEXT NULL,
  meta        JSONB NULL,

  CONSTRAINT chk_audit_log_id_ulid_len CHECK (char_length(id) = 26)
);

CREATE INDEX IF NOT EXISTS idx_audit_log_account_created ON %[1]s (account_id, created_at);
`, t, pgx.Identifier{schema}.Sanitize())
}

// Migrate creates the audit_log table if it does not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchemaSQL(s.schema))
	return err
}

func (s *PostgresSink) Emit(ctx context.Context, e Event) error {
	var metaVal *string
	if e.Context != (Context{}) {
		b, err := json.Marshal(e.Context)
		if err != nil {
			return err
		}
		m := string(b)
		metaVal = &m
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (
			id, created_at, level, action, account_id, identity_id, request_id, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
	`, e.ID, e.CreatedAt, string(e.Level), e.Action,
		zeroNil(e.Account.AccountID), zeroNil(e.Account.IdentityID),
		trimOrNil(e.Request.ID), trimOrNil(e.Request.IP), trimOrNil(e.Request.UserAgent), metaVal)
	return err
}

func zeroNil(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
