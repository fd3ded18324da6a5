// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/voicequote/meterd/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, id)
//	id, ok := ctx.Value(contextkeys.IdentityKey).(*identity.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *identity.Identity
	// Set by: middleware.IdentityMiddleware (pkg/middleware/identity.go)
	// Required by: quota gate, user sync and quota endpoints
	// Type: *identity.Identity
	IdentityKey Key = "identity"

	// AccountKey contains *accounts.Account
	// Set by: middleware.QuotaMiddleware after the quota gate passes
	// Used by: metered handlers that log against the account
	// Type: *accounts.Account
	AccountKey Key = "account"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the external identity id
	// Set by: middleware.IdentityMiddleware
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: cmd/meterd request middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// ClientIPKey contains the resolved client address string
	// Set by: middleware.ClientIPMiddleware
	// Type: string
	ClientIPKey Key = "client_ip"
)

// WithIdentity adds the resolved caller identity to the context
func WithIdentity(ctx context.Context, id interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// WithAccount adds the caller's account record to the context
func WithAccount(ctx context.Context, acct interface{}) context.Context {
	return context.WithValue(ctx, AccountKey, acct)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithClientIP adds the client address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetClientIP retrieves the client address from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
