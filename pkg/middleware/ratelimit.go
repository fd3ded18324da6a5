package middleware

import (
	"net/http"
	"strconv"

	"github.com/voicequote/meterd/pkg/httputil"
	"github.com/voicequote/meterd/pkg/observability"
	"github.com/voicequote/meterd/pkg/ratelimit"
)

// RateLimitMiddleware applies rate limit policies per client address
type RateLimitMiddleware struct {
	limiter         *ratelimit.Limiter
	fallbackEnabled bool
}

// NewRateLimitMiddleware creates a new rate limit middleware. Store errors
// let requests through until SetFallbackEnabled(false).
func NewRateLimitMiddleware(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:         limiter,
		fallbackEnabled: true,
	}
}

// SetFallbackEnabled controls whether to fail open (true) or closed (false)
// when the rate limit store errors
func (m *RateLimitMiddleware) SetFallbackEnabled(enabled bool) {
	m.fallbackEnabled = enabled
}

// Policy returns middleware enforcing p. A denial answers 429 with
// Retry-After and the denying rule's message.
func (m *RateLimitMiddleware) Policy(p ratelimit.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			d, rule, err := m.limiter.CheckPolicy(r.Context(), p, key)
			if err != nil {
				if m.fallbackEnabled {
					observability.FromContext(r.Context()).
						WithComponent("ratelimit").
						WithError(err).
						Warn("Rate limit store unavailable, allowing request")
					next.ServeHTTP(w, r)
					return
				}
				httputil.WriteAppError(w, r, "ratelimit", httputil.Unavailable("Service temporarily unavailable", err))
				return
			}

			setRateLimitHeaders(w, d)
			if !d.Allowed {
				httputil.WriteAppError(w, r, "ratelimit", httputil.RateLimited(rule.DenialMessage(d.RetryAfter), d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}
