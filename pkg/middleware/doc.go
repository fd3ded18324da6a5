// Package middleware provides the HTTP gates in front of metered actions.
//
// # CRITICAL: Middleware Ordering Requirements
//
// The gates read what earlier ones put in the request context. Wrong order
// makes the quota gate see every caller as anonymous and silently skip.
//
// REQUIRED ORDERING (outer to inner):
//  1. ClientIPMiddleware - Resolves the client address
//  2. RateLimitMiddleware.Policy - Always applied, keyed by client address
//  3. IdentityMiddleware - Resolves the optional signed-in user
//  4. QuotaMiddleware - Reserves one free-tier action for signed-in users
//
// Example (correct):
//
//	router.Use(middleware.ClientIPMiddleware)
//	router.Handle("/api/generate-quote", httputil.Chain(
//		rateLimit.Policy(policies["generate"]),
//		identity.Handler,
//		quotaGate.Handler,
//	)(handler))
//
// Example (WRONG - quota is never enforced):
//
//	quotaGate.Handler(identity.Handler(handler))
//
// WHY THIS MATTERS:
//   - Rate limiting runs before identity so anonymous traffic is throttled
//     before any token verification or database work happens
//   - The quota gate only enforces for requests that already carry an
//     identity; without one it passes the request through
package middleware
