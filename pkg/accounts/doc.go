// Package accounts persists the per-user metering record: identity, email,
// plan, and the monthly quote counter.
//
// Accounts are created on the first authenticated visit (upsert by external
// identity id) and looked up by email when billing providers report plan
// changes. Emails are normalized to lower case on every read and write.
//
// The counter is only changed through conditional single-statement updates
// (ResetQuotaIfDue, IncrementQuoteCount, DecrementQuoteCount), so concurrent
// requests for the same account cannot overrun the free quota.
package accounts
