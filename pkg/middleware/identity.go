package middleware

import (
	"context"
	"net/http"

	"github.com/voicequote/meterd/pkg/contextkeys"
	"github.com/voicequote/meterd/pkg/httputil"
	"github.com/voicequote/meterd/pkg/identity"
	"github.com/voicequote/meterd/pkg/observability"
)

// IdentityMiddleware attaches the caller's identity when one can be verified
type IdentityMiddleware struct {
	resolver identity.Resolver
}

// NewIdentityMiddleware creates a new identity middleware
func NewIdentityMiddleware(resolver identity.Resolver) *IdentityMiddleware {
	if resolver == nil {
		resolver = identity.NoopResolver{}
	}
	return &IdentityMiddleware{resolver: resolver}
}

// Handler resolves the identity. Invalid credentials are logged and the
// request continues anonymously.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.resolver.Resolve(r)
		if err != nil {
			observability.FromContext(r.Context()).
				WithComponent("identity").
				WithError(err).
				Debug("Ignoring unverifiable credentials")
			next.ServeHTTP(w, r)
			return
		}
		if id == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), id)
		ctx = contextkeys.WithUserID(ctx, id.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity answers 401 for anonymous requests. It must run inside
// IdentityMiddleware.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r.Context()) == nil {
			httputil.WriteAppError(w, r, "identity", httputil.Unauthorized("Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity returns the verified identity, or nil for anonymous requests
func GetIdentity(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(contextkeys.IdentityKey).(*identity.Identity)
	return id
}
