// Package identity resolves the optional signed-in user behind a request.
//
// Identity is never required for metered actions: a request with no token,
// or with a token that fails verification, is simply anonymous.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DefaultCookieName is the session cookie checked when there is no bearer
// token
const DefaultCookieName = "__session"

// Identity is a verified user
type Identity struct {
	// ID is the identity provider's subject. Accounts store it as their
	// external identity id.
	ID    string
	Email string
	Name  string
}

// Resolver extracts a verified identity from a request. A nil identity with
// a nil error means the request carried no credentials.
type Resolver interface {
	Resolve(r *http.Request) (*Identity, error)
}

// NoopResolver treats every request as anonymous
type NoopResolver struct{}

// Resolve implements Resolver
func (NoopResolver) Resolve(*http.Request) (*Identity, error) {
	return nil, nil
}

// Config configures an OIDCResolver
type Config struct {
	Issuer     string
	JWKSURL    string // defaults to <issuer>/.well-known/jwks.json
	Audience   string // empty skips the audience check
	CookieName string
}

// OIDCResolver verifies bearer or session-cookie JWTs against an issuer's
// signing keys
type OIDCResolver struct {
	verifier   *oidc.IDTokenVerifier
	cookieName string
}

// NewOIDCResolver creates a resolver that fetches signing keys from the
// issuer's JWKS endpoint on demand
func NewOIDCResolver(ctx context.Context, cfg Config) (*OIDCResolver, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimRight(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}
	return NewOIDCResolverWithKeySet(cfg, oidc.NewRemoteKeySet(ctx, jwksURL)), nil
}

// NewOIDCResolverWithKeySet creates a resolver over an explicit key set
func NewOIDCResolverWithKeySet(cfg Config, keySet oidc.KeySet) *OIDCResolver {
	cookie := cfg.CookieName
	if cookie == "" {
		cookie = DefaultCookieName
	}
	verifier := oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{
		ClientID:          cfg.Audience,
		SkipClientIDCheck: cfg.Audience == "",
	})
	return &OIDCResolver{verifier: verifier, cookieName: cookie}
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Resolve implements Resolver
func (o *OIDCResolver) Resolve(r *http.Request) (*Identity, error) {
	raw := o.token(r)
	if raw == "" {
		return nil, nil
	}

	tok, err := o.verifier.Verify(r.Context(), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var c claims
	if err := tok.Claims(&c); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}
	if tok.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &Identity{
		ID:    tok.Subject,
		Email: strings.TrimSpace(c.Email),
		Name:  c.Name,
	}, nil
}

func (o *OIDCResolver) token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	if c, err := r.Cookie(o.cookieName); err == nil {
		return c.Value
	}
	return ""
}
