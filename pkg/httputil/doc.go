// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Errors
//
// Handlers return typed errors and let WriteAppError map them:
//
//	if err := httputil.RequireNonEmpty("email", req.Email); err != nil {
//		httputil.WriteAppError(w, r, "restore", err)
//		return
//	}
//
// Kinds map to status codes: validation and signature 400, auth 401,
// quota 403, not found 404, rate limit 429 (with Retry-After), configuration,
// upstream and internal 500, unavailable 503. Every body is {"error": message};
// wrapped causes are logged with a component tag and never written.
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggerMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//	)
package httputil
