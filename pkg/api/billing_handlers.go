package api

import (
	"errors"
	"net/http"

	"github.com/voicequote/meterd/pkg/billing"
	"github.com/voicequote/meterd/pkg/httputil"
)

type webhookResponse struct {
	Received bool `json:"received"`
}

type restoreRequest struct {
	Email string `json:"email"`
}

type orderDetailsResponse struct {
	Email string `json:"email"`
}

// webhook handles a provider webhook. The signature is checked over the
// exact request bytes before anything is parsed. Lemon Squeezy deliveries
// without a signature header are rejected before the secret is consulted.
func (s *Server) webhook(provider billing.Provider) http.HandlerFunc {
	component := string(provider) + "_webhook"
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(provider.SignatureHeader())
		if provider == billing.ProviderLemon && header == "" {
			httputil.WriteAppError(w, r, component, httputil.InvalidSignature("No X-Signature header."))
			return
		}

		secret := s.deps.WebhookSecrets[provider]
		if secret == "" {
			httputil.WriteAppError(w, r, component, httputil.Misconfigured("Webhook secret not configured"))
			return
		}

		body, err := httputil.ReadRawBody(w, r, httputil.MaxWebhookBodyBytes)
		if err != nil {
			httputil.WriteAppError(w, r, component, err)
			return
		}
		if !billing.Verify(provider, body, header, secret) {
			httputil.WriteAppError(w, r, component, httputil.InvalidSignature("Invalid webhook signature"))
			return
		}

		ev, err := billing.ParseEvent(provider, body)
		if err != nil {
			httputil.WriteAppError(w, r, component, &httputil.Error{Kind: httputil.KindValidation, Message: "Invalid webhook payload", Err: err})
			return
		}
		if s.deps.Reconciler == nil {
			httputil.WriteAppError(w, r, component, httputil.Misconfigured("Webhook processing not configured"))
			return
		}
		if err := s.deps.Reconciler.Apply(r.Context(), ev); err != nil {
			httputil.WriteAppError(w, r, component, httputil.Internal(err))
			return
		}

		httputil.WriteSuccess(w, webhookResponse{Received: true})
	}
}

// restoreAccess handles POST /api/{provider}/restore-access
func (s *Server) restoreAccess(provider billing.Provider) http.HandlerFunc {
	component := string(provider) + "_restore"
	return func(w http.ResponseWriter, r *http.Request) {
		var req restoreRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}

		restorer := s.deps.Restorers[provider]
		if restorer == nil {
			httputil.WriteAppError(w, r, component, httputil.Misconfigured("Payment system not configured."))
			return
		}

		result, err := restorer.Restore(r.Context(), req.Email)
		switch {
		case errors.Is(err, billing.ErrEmailRequired):
			httputil.WriteAppError(w, r, component, httputil.Validation("Email is required."))
			return
		case errors.Is(err, billing.ErrNotConfigured):
			httputil.WriteAppError(w, r, component, httputil.Misconfigured("Payment system not configured."))
			return
		case err != nil:
			httputil.WriteAppError(w, r, component, httputil.Upstream("Failed to look up subscription.", err))
			return
		}

		httputil.WriteSuccess(w, result)
	}
}

// orderDetails handles GET /api/lemon/order-details?order_id=
func (s *Server) orderDetails(w http.ResponseWriter, r *http.Request) {
	orderID := httputil.ParseQueryString(r, "order_id", "")
	if orderID == "" {
		httputil.WriteAppError(w, r, "order_details", httputil.Validation("Missing order_id."))
		return
	}
	if s.deps.Orders == nil || !s.deps.Orders.Configured() {
		httputil.WriteAppError(w, r, "order_details", httputil.Misconfigured("LEMONSQUEEZY_API_KEY not configured."))
		return
	}

	order, err := s.deps.Orders.GetOrder(r.Context(), orderID)
	if errors.Is(err, billing.ErrOrderNotFound) {
		httputil.WriteAppError(w, r, "order_details", httputil.NotFound("Order not found."))
		return
	}
	if err != nil {
		httputil.WriteAppError(w, r, "order_details", httputil.Upstream("Failed to fetch order details.", err))
		return
	}

	httputil.WriteSuccess(w, orderDetailsResponse{Email: order.Email})
}
