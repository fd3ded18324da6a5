package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/observability"
)

// FreeQuota is the number of metered actions a free account gets per month
const FreeQuota = 3

// ExceededMessage is shown to users who have spent their free allowance
const ExceededMessage = "You've used all 3 free quotes this month. Upgrade to Pro for unlimited quotes."

// QuotaExceededError is returned when a free account has no actions left
type QuotaExceededError struct {
	Plan  accounts.Plan
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return ExceededMessage
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// Decision is the outcome of a quota check
type Decision struct {
	Allowed bool
	Account *accounts.Account
}

// Status is the quota view returned to clients
type Status struct {
	Plan            accounts.Plan `json:"plan"`
	IsPro           bool          `json:"isPro"`
	QuotesRemaining *int          `json:"quotesRemaining"`
	QuoteCount      int           `json:"quoteCount"`
	QuotaResetDate  time.Time     `json:"quotaResetDate"`
}

// Tracker checks and records usage against an account store
type Tracker struct {
	store     accounts.Store
	freeQuota int
	now       func() time.Time
	loc       *time.Location
	metrics   *observability.Metrics
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the zone whose midnight starts a new month. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// WithMetrics records quota decisions
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates a tracker over the given store
func NewTracker(store accounts.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		freeQuota: FreeQuota,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NextResetDate returns midnight on the first day of the month after now,
// in now's location
func NextResetDate(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())
}

// InitialResetDate is the reset date given to a newly created account
func (t *Tracker) InitialResetDate() time.Time {
	return NextResetDate(t.now().In(t.loc))
}

// CheckAndMaybeReset repairs an overdue counter and reports whether the
// account may perform another metered action. The returned account reflects
// any repair.
func (t *Tracker) CheckAndMaybeReset(ctx context.Context, acct *accounts.Account) (Decision, error) {
	if acct == nil {
		return Decision{}, errors.New("account is required")
	}
	current, err := t.repair(ctx, acct)
	if err != nil {
		return Decision{}, err
	}

	allowed := current.Plan.IsPaid() || current.QuoteCount < t.freeQuota
	t.metrics.RecordQuota(string(current.Plan), allowed)
	return Decision{Allowed: allowed, Account: current}, nil
}

func (t *Tracker) repair(ctx context.Context, acct *accounts.Account) (*accounts.Account, error) {
	current := *acct
	now := t.now()
	if now.Before(current.QuotaResetDate) {
		return &current, nil
	}

	next := NextResetDate(now.In(t.loc))
	reset, err := t.store.ResetQuotaIfDue(ctx, current.ID, now, next)
	if err != nil {
		return nil, fmt.Errorf("failed to reset quota: %w", err)
	}
	if reset {
		current.QuoteCount = 0
		current.QuotaResetDate = next
		return &current, nil
	}

	// Another request repaired it first.
	fresh, err := t.store.GetByID(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", err)
	}
	return fresh, nil
}

// RecordUsage counts one completed metered action. A free account that
// reached its allowance in the meantime gets a *QuotaExceededError and is
// not counted.
func (t *Tracker) RecordUsage(ctx context.Context, acct *accounts.Account) error {
	err := t.store.IncrementQuoteCount(ctx, acct.ID, t.freeQuota)
	if errors.Is(err, accounts.ErrLimitReached) {
		return &QuotaExceededError{Plan: acct.Plan, Used: t.freeQuota, Limit: t.freeQuota}
	}
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Reserve checks the account and counts one action up front. Release gives
// the unit back if the action then fails.
func (t *Tracker) Reserve(ctx context.Context, acct *accounts.Account) (Decision, error) {
	decision, err := t.CheckAndMaybeReset(ctx, acct)
	if err != nil {
		return Decision{}, err
	}
	if !decision.Allowed {
		a := decision.Account
		return decision, &QuotaExceededError{Plan: a.Plan, Used: a.QuoteCount, Limit: t.freeQuota}
	}

	if err := t.RecordUsage(ctx, decision.Account); err != nil {
		if IsQuotaExceeded(err) {
			decision.Allowed = false
			t.metrics.RecordQuota(string(decision.Account.Plan), false)
		}
		return decision, err
	}
	decision.Account.QuoteCount++
	return decision, nil
}

// Release returns a unit taken by Reserve. acct must be the account from
// the Reserve decision: its QuotaResetDate names the period the unit came
// out of, and nothing is returned once that period has rolled over.
func (t *Tracker) Release(ctx context.Context, acct *accounts.Account) error {
	if err := t.store.DecrementQuoteCount(ctx, acct.ID, acct.QuotaResetDate); err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

// Status summarizes an account's quota. QuotesRemaining is nil for paid
// plans.
func (t *Tracker) Status(acct *accounts.Account) Status {
	s := Status{
		Plan:           acct.Plan,
		IsPro:          acct.Plan.IsPaid(),
		QuoteCount:     acct.QuoteCount,
		QuotaResetDate: acct.QuotaResetDate,
	}
	if !s.IsPro {
		remaining := t.freeQuota - acct.QuoteCount
		if remaining < 0 {
			remaining = 0
		}
		s.QuotesRemaining = &remaining
	}
	return s
}
