package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/contextkeys"
	"github.com/voicequote/meterd/pkg/httputil"
	"github.com/voicequote/meterd/pkg/observability"
	"github.com/voicequote/meterd/pkg/quota"
)

// QuotaMiddleware reserves one free-tier action for signed-in callers
//
// IMPORTANT: See package documentation for middleware ordering requirements.
type QuotaMiddleware struct {
	tracker *quota.Tracker
	store   accounts.Store
}

// NewQuotaMiddleware creates a new QuotaMiddleware
func NewQuotaMiddleware(tracker *quota.Tracker, store accounts.Store) *QuotaMiddleware {
	return &QuotaMiddleware{tracker: tracker, store: store}
}

// Handler reserves a unit before the wrapped handler runs and releases it
// if the handler answers with an error status or panics. A panic is
// re-raised after the release. Anonymous requests pass through untouched.
//
// Returns: 403 Forbidden when the free allowance is spent
func (m *QuotaMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := GetIdentity(ctx)
		if id == nil {
			next.ServeHTTP(w, r)
			return
		}
		log := observability.FromContext(ctx).WithComponent("quota")

		acct, err := m.accountFor(ctx, id.ID, id.Email)
		if errors.Is(err, accounts.ErrEmailInUse) {
			log.WithError(err).Warn("Identity email belongs to another account, skipping quota")
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			httputil.WriteAppError(w, r, "quota", httputil.Internal(err))
			return
		}
		if acct == nil {
			log.Warn("Identity has no email, skipping quota")
			next.ServeHTTP(w, r)
			return
		}

		decision, err := m.tracker.Reserve(ctx, acct)
		if quota.IsQuotaExceeded(err) {
			httputil.WriteAppError(w, r, "quota", httputil.QuotaExceeded(quota.ExceededMessage))
			return
		}
		if err != nil {
			httputil.WriteAppError(w, r, "quota", httputil.Internal(err))
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			p := recover()
			if p != nil || rec.status >= http.StatusBadRequest {
				// The client may be gone; the release must still land.
				if err := m.tracker.Release(context.WithoutCancel(ctx), decision.Account); err != nil {
					log.WithError(err).Error("Failed to release quota reservation")
				}
			}
			if p != nil {
				panic(p)
			}
		}()
		next.ServeHTTP(rec, r.WithContext(contextkeys.WithAccount(ctx, decision.Account)))
	})
}

// accountFor returns the caller's account, creating it on first use. A nil
// account means the identity cannot own one.
func (m *QuotaMiddleware) accountFor(ctx context.Context, externalID, email string) (*accounts.Account, error) {
	acct, err := m.store.GetByExternalID(ctx, externalID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, accounts.ErrNotFound) {
		return nil, err
	}
	if accounts.NormalizeEmail(email) == "" {
		return nil, nil
	}
	return m.store.UpsertByExternalID(ctx, externalID, email, m.tracker.InitialResetDate())
}

// GetAccount returns the account the quota gate charged, if any
func GetAccount(ctx context.Context) *accounts.Account {
	acct, _ := ctx.Value(contextkeys.AccountKey).(*accounts.Account)
	return acct
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}
