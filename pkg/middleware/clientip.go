package middleware

import (
	"net/http"
	"strings"

	"github.com/voicequote/meterd/pkg/contextkeys"
)

// UnknownClient is the rate limit key used when no address header is present
const UnknownClient = "unknown"

// ClientIP returns the first X-Forwarded-For entry, else X-Real-IP, else
// UnknownClient. The headers are trusted as set by the fronting proxy.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownClient
}

// ClientIPMiddleware stores ClientIP in the request context
func ClientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := contextkeys.WithClientIP(r.Context(), ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientKey(r *http.Request) string {
	if ip := contextkeys.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return ClientIP(r)
}
