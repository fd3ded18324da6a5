// Package quota enforces the monthly free-tier allowance of metered actions.
//
// Free accounts get FreeQuota actions per calendar month. Paid plans are never
// refused but their usage is still counted. There is no scheduled reset job:
// the first access after an account's quotaResetDate repairs the counter and
// moves the date to the first instant of the next month.
//
// Usage:
//
//	tracker := quota.NewTracker(store)
//
//	decision, err := tracker.Reserve(ctx, account)
//	if err != nil {
//		// *QuotaExceededError when the free allowance is spent
//	}
//	if actionFailed {
//		tracker.Release(ctx, decision.Account)
//	}
//
// Reserve counts the action before it runs so two concurrent requests cannot
// both take the last free unit. CheckAndMaybeReset plus RecordUsage is the
// check-then-record form for callers that only count successful work.
package quota
