package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/ai"
	"github.com/voicequote/meterd/pkg/billing"
	"github.com/voicequote/meterd/pkg/httputil"
	"github.com/voicequote/meterd/pkg/identity"
	"github.com/voicequote/meterd/pkg/middleware"
	"github.com/voicequote/meterd/pkg/observability"
	"github.com/voicequote/meterd/pkg/quota"
	"github.com/voicequote/meterd/pkg/ratelimit"
)

// OrderLookup fetches checkout orders for the success page
type OrderLookup interface {
	Configured() bool
	GetOrder(ctx context.Context, orderID string) (*billing.Order, error)
}

// Dependencies wires the server to its collaborators. Nil providers leave
// their routes answering with a configuration error.
type Dependencies struct {
	Accounts accounts.Store
	Tracker  *quota.Tracker
	Limiter  *ratelimit.Limiter
	Policies map[string]ratelimit.Policy

	// RateLimitFailClosed answers 503 when the limiter store errors
	// instead of letting the request through
	RateLimitFailClosed bool

	Identity identity.Resolver

	Generator   ai.ProposalGenerator
	Transcriber ai.Transcriber

	Reconciler     *billing.Reconciler
	WebhookSecrets map[billing.Provider]string
	Restorers      map[billing.Provider]*billing.Restorer
	Orders         OrderLookup

	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *observability.Logger

	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	deps     Dependencies
	router   *mux.Router
	identity *middleware.IdentityMiddleware
	limits   *middleware.RateLimitMiddleware
	quota    *middleware.QuotaMiddleware
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	if deps.Policies == nil {
		deps.Policies = ratelimit.DefaultPolicies()
	}

	s := &Server{
		deps:     deps,
		router:   mux.NewRouter(),
		identity: middleware.NewIdentityMiddleware(deps.Identity),
		limits:   middleware.NewRateLimitMiddleware(deps.Limiter),
		quota:    middleware.NewQuotaMiddleware(deps.Tracker, deps.Accounts),
	}
	s.limits.SetFallbackEnabled(!deps.RateLimitFailClosed)

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		observability.HTTPMetricsMiddleware(s.deps.Metrics),
		middleware.ClientIPMiddleware,
	)
	if s.deps.MaxBodyBytes > 0 {
		s.router.Use(httputil.MaxBytesMiddleware(s.deps.MaxBodyBytes))
	}

	// Metered actions
	s.router.Handle("/api/generate-quote", s.metered(ratelimit.BucketGenerate, s.generateQuote)).Methods("POST")
	s.router.Handle("/api/transcribe", s.metered(ratelimit.BucketTranscribe, s.transcribe)).Methods("POST")

	// Billing webhooks
	s.router.HandleFunc("/api/paddle/webhook", s.webhook(billing.ProviderPaddle)).Methods("POST")
	s.router.HandleFunc("/api/lemon/webhook", s.webhook(billing.ProviderLemon)).Methods("POST")

	// Restore access
	s.router.HandleFunc("/api/paddle/restore-access", s.restoreAccess(billing.ProviderPaddle)).Methods("POST")
	s.router.HandleFunc("/api/lemon/restore-access", s.restoreAccess(billing.ProviderLemon)).Methods("POST")
	s.router.HandleFunc("/api/lemon/order-details", s.orderDetails).Methods("GET")

	// Signed-in user
	user := httputil.Chain(s.identity.Handler, middleware.RequireIdentity)
	s.router.Handle("/api/user/sync", user(http.HandlerFunc(s.syncUser))).Methods("POST")
	s.router.Handle("/api/user/quota", user(http.HandlerFunc(s.getQuota))).Methods("GET")

	// Operations
	if s.deps.Health != nil {
		s.router.HandleFunc("/healthz", s.deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.deps.Health.Readiness).Methods("GET")
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods("GET")
	}
}

// metered wraps a handler in the rate limit, identity and quota gates.
// The order matters; see the middleware package documentation.
func (s *Server) metered(bucket string, h http.HandlerFunc) http.Handler {
	policy, ok := s.deps.Policies[bucket]
	if !ok {
		policy = ratelimit.DefaultPolicies()[bucket]
	}
	return httputil.Chain(
		s.limits.Policy(policy),
		s.identity.Handler,
		s.quota.Handler,
	)(h)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}
