package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/voicequote/meterd/pkg/observability"
)

// Decision is the outcome of charging one request to a window
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
	// RetryAfter is the whole number of seconds until the window resets.
	// Only set when Allowed is false.
	RetryAfter int
}

// Remaining returns how many more requests the window admits
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// Store holds rate windows. Hit must read, compare and increment the
// (bucket, key) window as one atomic step.
type Store interface {
	Hit(ctx context.Context, bucket, key string, limit int, window time.Duration) (Decision, error)
}

// Limiter applies limits through a Store
type Limiter struct {
	store   Store
	metrics *observability.Metrics
}

// NewLimiter creates a limiter. metrics may be nil.
func NewLimiter(store Store, metrics *observability.Metrics) *Limiter {
	return &Limiter{store: store, metrics: metrics}
}

// Check charges one request for key against a single (bucket, limit, window)
func (l *Limiter) Check(ctx context.Context, bucket, key string, limit int, window time.Duration) (Decision, error) {
	if limit < 1 || window <= 0 {
		return Decision{}, fmt.Errorf("invalid limit %d/%s for bucket %s", limit, window, bucket)
	}
	d, err := l.store.Hit(ctx, bucket, key, limit, window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check rate limit for bucket %s: %w", bucket, err)
	}
	l.metrics.RecordRateLimit(bucket, d.Allowed)
	return d, nil
}

// CheckPolicy runs the policy's rules in order and stops at the first
// denial, returning the rule that denied. Rules checked before the denial
// keep their increment. When every rule allows, the decision with the
// fewest requests remaining is returned.
func (l *Limiter) CheckPolicy(ctx context.Context, p Policy, key string) (Decision, Rule, error) {
	var tightest Decision
	var tightestRule Rule
	for i, rule := range p.Rules {
		d, err := l.Check(ctx, p.BucketFor(rule), key, rule.Limit, rule.Window)
		if err != nil {
			return Decision{}, rule, err
		}
		if !d.Allowed {
			return d, rule, nil
		}
		if i == 0 || d.Remaining() < tightest.Remaining() {
			tightest, tightestRule = d, rule
		}
	}
	return tightest, tightestRule, nil
}

// retryAfterSeconds rounds the remaining window up to whole seconds
func retryAfterSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}
