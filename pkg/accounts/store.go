package accounts

import (
	"context"
	"time"
)

// Store persists accounts. Every mutation is a single atomic statement.
type Store interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpsertByExternalID creates the account on first visit or refreshes its
	// email. New accounts start on the free plan with quotaResetDate.
	UpsertByExternalID(ctx context.Context, externalID, email string, quotaResetDate time.Time) (*Account, error)

	// ResetQuotaIfDue sets quote_count to 0 and quota_reset_date to next
	// only while quota_reset_date <= now. It reports whether a reset happened.
	ResetQuotaIfDue(ctx context.Context, id string, now, next time.Time) (bool, error)

	// IncrementQuoteCount adds one use. Free accounts already holding
	// freeLimit uses are refused with ErrLimitReached; paid accounts are
	// never refused.
	IncrementQuoteCount(ctx context.Context, id string, freeLimit int) error

	// DecrementQuoteCount gives back one use, never going below zero. It
	// only applies while quota_reset_date still equals period, so a use taken
	// in one month is never refunded out of the next.
	DecrementQuoteCount(ctx context.Context, id string, period time.Time) error

	// SetPlanByEmail assigns a plan. It reports false when no account has
	// that email.
	SetPlanByEmail(ctx context.Context, email string, plan Plan) (bool, error)

	Ping(ctx context.Context) error
}
