// Package billing keeps account plans in step with the payment providers.
//
// # Overview
//
// Two providers are supported, Paddle Billing and Lemon Squeezy. Each one
// reaches us two ways:
//
//   - Webhooks. The raw body is checked with Verify, parsed into a
//     provider-neutral Event and handed to a Reconciler, which sets the
//     account plan by email.
//   - Restore-access lookups. A user who paid but lost their session asks
//     for their plan back by email; a Restorer queries the provider's API
//     for an active subscription and persists the plan it finds.
//
// # Signatures
//
// Lemon Squeezy signs the body with HMAC-SHA256 and sends the hex digest in
// X-Signature. Paddle sends "ts=<unix>;h1=<hex>" in Paddle-Signature, where
// h1 is HMAC-SHA256 over "<ts>:<body>". Both are compared in constant time.
// Neither is checked for freshness, so a captured webhook can be replayed.
//
// # Plans
//
// A PlanMapper turns a price id (Paddle) or product id (Lemon Squeezy) into
// a plan: the configured business id maps to business, anything else to pro.
// Cancellation always lands on free.
//
// # Ordering
//
// Events are applied as they arrive. Providers retry and may deliver out of
// order, so a late "created" after a "cancelled" re-activates the account.
// Events are not deduplicated; reapplying one is harmless because every
// transition is a plain assignment.
package billing
