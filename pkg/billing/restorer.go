package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/observability"
)

// RestoreFallbackPeriod is used as the expiry when a provider reports no
// renewal date
const RestoreFallbackPeriod = 31 * 24 * time.Hour

// ErrEmailRequired is returned by Restore for a blank email
var ErrEmailRequired = errors.New("email is required")

// Subscription is an active provider subscription
type Subscription struct {
	ID       string
	Status   string
	PlanID   string
	Email    string
	RenewsAt *time.Time
}

// SubscriptionLookup finds an active subscription by customer email
type SubscriptionLookup interface {
	Provider() Provider
	Configured() bool
	// ActiveSubscription returns nil, nil when there is none
	ActiveSubscription(ctx context.Context, email string) (*Subscription, error)
}

// RestoreResult is returned to the user asking for access back
type RestoreResult struct {
	Active    bool          `json:"active"`
	Plan      accounts.Plan `json:"plan,omitempty"`
	Email     string        `json:"email,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// Restorer grants a plan from an active provider subscription
type Restorer struct {
	lookup  SubscriptionLookup
	mapper  PlanMapper
	store   accounts.Store
	now     func() time.Time
	logger  *observability.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

// NewRestorer creates a restorer for one provider
func NewRestorer(lookup SubscriptionLookup, mapper PlanMapper, store accounts.Store, logger *observability.Logger, metrics *observability.Metrics) *Restorer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Restorer{
		lookup:  lookup,
		mapper:  mapper,
		store:   store,
		now:     time.Now,
		logger:  logger.WithComponent("restorer").WithField("provider", lookup.Provider()),
		metrics: metrics,
	}
}

// Restore looks up email at the provider and, if a subscription is active,
// sets the account plan. Concurrent calls for the same email share one
// provider request. The shared request is detached from any single caller's
// cancellation; each caller stops waiting when its own ctx is done.
func (r *Restorer) Restore(ctx context.Context, email string) (RestoreResult, error) {
	email = accounts.NormalizeEmail(email)
	if email == "" {
		return RestoreResult{}, ErrEmailRequired
	}
	if !r.lookup.Configured() {
		return RestoreResult{}, ErrNotConfigured
	}

	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(email, func() (interface{}, error) {
		return r.restore(shared, email)
	})
	select {
	case <-ctx.Done():
		return RestoreResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return RestoreResult{}, res.Err
		}
		return res.Val.(RestoreResult), nil
	}
}

func (r *Restorer) restore(ctx context.Context, email string) (RestoreResult, error) {
	provider := string(r.lookup.Provider())

	sub, err := r.lookup.ActiveSubscription(ctx, email)
	if err != nil {
		r.metrics.RecordRestore(provider, OutcomeError)
		r.logger.WithError(err).Error("Subscription lookup failed")
		return RestoreResult{}, fmt.Errorf("failed to look up subscription: %w", err)
	}
	if sub == nil {
		r.metrics.RecordRestore(provider, "inactive")
		return RestoreResult{Active: false}, nil
	}

	plan := r.mapper.Map(sub.PlanID)
	expiresAt := r.now().Add(RestoreFallbackPeriod).UTC()
	if sub.RenewsAt != nil {
		expiresAt = *sub.RenewsAt
	}
	resultEmail := email
	if sub.Email != "" {
		resultEmail = sub.Email
	}

	updated, err := r.store.SetPlanByEmail(ctx, email, plan)
	if err != nil {
		r.metrics.RecordRestore(provider, OutcomeError)
		return RestoreResult{}, fmt.Errorf("failed to persist restored plan: %w", err)
	}
	if updated {
		r.metrics.RecordPlanChange("restore", string(plan))
	}
	r.metrics.RecordRestore(provider, "active")
	r.logger.WithFields(map[string]interface{}{
		"email":           email,
		"plan":            plan,
		"account_updated": updated,
	}).Info("Subscription restored")

	return RestoreResult{
		Active:    true,
		Plan:      plan,
		Email:     resultEmail,
		ExpiresAt: &expiresAt,
	}, nil
}
