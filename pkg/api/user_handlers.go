package api

import (
	"errors"
	"net/http"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/httputil"
	"github.com/voicequote/meterd/pkg/middleware"
)

type syncResponse struct {
	ID              string        `json:"id"`
	Plan            accounts.Plan `json:"plan"`
	IsPro           bool          `json:"isPro"`
	QuoteCount      int           `json:"quoteCount"`
	QuotesRemaining *int          `json:"quotesRemaining"`
}

// syncUser handles POST /api/user/sync. It creates the account on first
// visit, refreshes its email and repairs an overdue quota.
func (s *Server) syncUser(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if accounts.NormalizeEmail(id.Email) == "" {
		httputil.WriteAppError(w, r, "user_sync", httputil.NotFound("User not found"))
		return
	}

	acct, err := s.deps.Accounts.UpsertByExternalID(r.Context(), id.ID, id.Email, s.deps.Tracker.InitialResetDate())
	if errors.Is(err, accounts.ErrEmailInUse) {
		httputil.WriteAppError(w, r, "user_sync", httputil.Conflict("This email is already linked to another account."))
		return
	}
	if err != nil {
		httputil.WriteAppError(w, r, "user_sync", httputil.Internal(err))
		return
	}
	decision, err := s.deps.Tracker.CheckAndMaybeReset(r.Context(), acct)
	if err != nil {
		httputil.WriteAppError(w, r, "user_sync", httputil.Internal(err))
		return
	}

	status := s.deps.Tracker.Status(decision.Account)
	httputil.WriteSuccess(w, syncResponse{
		ID:              decision.Account.ID,
		Plan:            status.Plan,
		IsPro:           status.IsPro,
		QuoteCount:      status.QuoteCount,
		QuotesRemaining: status.QuotesRemaining,
	})
}

// getQuota handles GET /api/user/quota
func (s *Server) getQuota(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())

	acct, err := s.deps.Accounts.GetByExternalID(r.Context(), id.ID)
	if errors.Is(err, accounts.ErrNotFound) {
		httputil.WriteAppError(w, r, "user_quota", httputil.NotFound("User not found, please reload"))
		return
	}
	if err != nil {
		httputil.WriteAppError(w, r, "user_quota", httputil.Internal(err))
		return
	}

	decision, err := s.deps.Tracker.CheckAndMaybeReset(r.Context(), acct)
	if err != nil {
		httputil.WriteAppError(w, r, "user_quota", httputil.Internal(err))
		return
	}
	httputil.WriteSuccess(w, s.deps.Tracker.Status(decision.Account))
}
