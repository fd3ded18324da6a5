package accounts

import (
	"context"
	"fmt"
	"regexp"
)

// Dialect selects SQL flavour details for a driver
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id               TEXT PRIMARY KEY,
		external_id      TEXT UNIQUE,
		email            TEXT NOT NULL UNIQUE,
		plan             TEXT NOT NULL DEFAULT 'free' CHECK (plan IN ('free', 'pro', 'business')),
		quote_count      INTEGER NOT NULL DEFAULT 0 CHECK (quote_count >= 0),
		quota_reset_date TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id               TEXT PRIMARY KEY,
		external_id      TEXT UNIQUE,
		email            TEXT NOT NULL UNIQUE,
		plan             TEXT NOT NULL DEFAULT 'free' CHECK (plan IN ('free', 'pro', 'business')),
		quote_count      INTEGER NOT NULL DEFAULT 0 CHECK (quote_count >= 0),
		quota_reset_date TIMESTAMP NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the accounts table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := postgresSchema
	if s.dialect == DialectSQLite {
		statements = sqliteSchema
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate accounts schema: %w", err)
		}
	}
	return nil
}

var dollarParam = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders for the dialect. SQLite numbers $NAME
// parameters by first appearance, so they become explicit ?N.
func (s *SQLStore) rebind(query string) string {
	if s.dialect == DialectSQLite {
		return dollarParam.ReplaceAllString(query, "?$1")
	}
	return query
}
