package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// pqUniqueViolation is the SQLSTATE for a unique constraint violation
const pqUniqueViolation = "23505"

// PoolConfig tunes the database/sql pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the account database and verifies it is reachable
func Open(ctx context.Context, driver, url string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	return db, nil
}

// SQLStore implements Store on PostgreSQL or SQLite
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string
}

// NewSQLStore wraps an open database
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// DB exposes the pool for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

const accountColumns = `id, external_id, email, plan, quote_count, quota_reset_date, created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*Account, error) {
	var (
		a          Account
		externalID sql.NullString
		plan       string
	)
	err := row.Scan(&a.ID, &externalID, &a.Email, &plan, &a.QuoteCount, &a.QuotaResetDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.ExternalIdentityID = externalID.String
	a.Plan = Plan(plan)
	return &a, nil
}

func (s *SQLStore) getBy(ctx context.Context, column, value string) (*Account, error) {
	query := s.rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1`)
	return scanAccount(s.db.QueryRowContext(ctx, query, value))
}

// GetByID implements Store
func (s *SQLStore) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.getBy(ctx, "id", id)
}

// GetByExternalID implements Store
func (s *SQLStore) GetByExternalID(ctx context.Context, externalID string) (*Account, error) {
	return s.getBy(ctx, "external_id", externalID)
}

// GetByEmail implements Store
func (s *SQLStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return s.getBy(ctx, "email", NormalizeEmail(email))
}

// UpsertByExternalID implements Store
func (s *SQLStore) UpsertByExternalID(ctx context.Context, externalID, email string, quotaResetDate time.Time) (*Account, error) {
	if externalID == "" {
		return nil, errors.New("external identity id is required")
	}
	now := s.now()
	query := s.rebind(`
		INSERT INTO accounts (id, external_id, email, plan, quote_count, quota_reset_date, created_at, updated_at)
		VALUES ($1, $2, $3, 'free', 0, $4, $5, $5)
		ON CONFLICT (external_id) DO UPDATE SET email = excluded.email, updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query, s.newID(), externalID, NormalizeEmail(email), quotaResetDate.UTC(), now)
	if isUniqueViolation(err) {
		// external_id conflicts are absorbed by ON CONFLICT, so this is email.
		return nil, fmt.Errorf("failed to upsert account: %w: %s", ErrEmailInUse, NormalizeEmail(email))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return s.GetByExternalID(ctx, externalID)
}

// ResetQuotaIfDue implements Store
func (s *SQLStore) ResetQuotaIfDue(ctx context.Context, id string, now, next time.Time) (bool, error) {
	query := s.rebind(`
		UPDATE accounts SET quote_count = 0, quota_reset_date = $2, updated_at = $3
		WHERE id = $1 AND quota_reset_date <= $3`)

	result, err := s.db.ExecContext(ctx, query, id, next.UTC(), now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to reset quota: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// IncrementQuoteCount implements Store
func (s *SQLStore) IncrementQuoteCount(ctx context.Context, id string, freeLimit int) error {
	query := s.rebind(`
		UPDATE accounts SET quote_count = quote_count + 1, updated_at = $3
		WHERE id = $1 AND (plan <> 'free' OR quote_count < $2)`)

	result, err := s.db.ExecContext(ctx, query, id, freeLimit, s.now())
	if err != nil {
		return fmt.Errorf("failed to increment quote count: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrLimitReached
	}
	return nil
}

// DecrementQuoteCount implements Store
func (s *SQLStore) DecrementQuoteCount(ctx context.Context, id string, period time.Time) error {
	query := s.rebind(`
		UPDATE accounts SET quote_count = quote_count - 1, updated_at = $3
		WHERE id = $1 AND quote_count > 0 AND quota_reset_date = $2`)

	if _, err := s.db.ExecContext(ctx, query, id, period.UTC(), s.now()); err != nil {
		return fmt.Errorf("failed to decrement quote count: %w", err)
	}
	return nil
}

// SetPlanByEmail implements Store
func (s *SQLStore) SetPlanByEmail(ctx context.Context, email string, plan Plan) (bool, error) {
	if !plan.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	query := s.rebind(`UPDATE accounts SET plan = $2, updated_at = $3 WHERE email = $1`)

	result, err := s.db.ExecContext(ctx, query, NormalizeEmail(email), string(plan), s.now())
	if err != nil {
		return false, fmt.Errorf("failed to set plan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Ping implements Store
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
