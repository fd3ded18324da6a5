// Package api provides the HTTP server for meterd.
//
// # Overview
//
// The server exposes the two metered actions (proposal generation and
// voice transcription), the billing provider webhooks, subscription
// restore, and the signed-in user's quota view. It is built on gorilla/mux.
//
// # Route Groups
//
//   - Metered actions: POST /api/generate-quote, POST /api/transcribe.
//     Each runs behind ClientIP, its rate limit policy, identity resolution
//     and the quota gate, in that order.
//   - Webhooks: POST /api/paddle/webhook, POST /api/lemon/webhook. The raw
//     body is verified before it is parsed.
//   - Restore: POST /api/paddle/restore-access, POST /api/lemon/restore-access
//     and GET /api/lemon/order-details.
//   - User: POST /api/user/sync, GET /api/user/quota. Both require a
//     verified identity.
//   - Operations: GET /healthz, GET /readyz, GET /metrics.
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Accounts: store,
//		Tracker:  tracker,
//		Limiter:  limiter,
//		Policies: ratelimit.DefaultPolicies(),
//		...
//	})
//	http.ListenAndServe(":8080", server)
//
// # Errors
//
// Handlers report failures with httputil.Error values. Responses always
// have the shape {"error": message}; provider and database detail is only
// logged.
package api
