package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/billing"
)

func paddleEvent(eventType, status, email, priceID string) []byte {
	return []byte(`{"event_type":"` + eventType + `","data":{"id":"sub_01","status":"` + status +
		`","customer":{"email":"` + email + `"},"items":[{"price":{"id":"` + priceID + `"}}]}}`)
}

func lemonEvent(eventName, status, email string, productID int) []byte {
	return []byte(`{"meta":{"event_name":"` + eventName + `"},"data":{"id":"42","attributes":{"user_email":"` +
		email + `","status":"` + status + `","product_id":` + strconv.Itoa(productID) + `}}}`)
}

func (e *testEnv) postPaddle(body []byte, secret string) (int, string) {
	header := billing.PaddleSignatureHeader(body, "1741600000", secret)
	rec := e.do(http.MethodPost, "/api/paddle/webhook", bytes.NewReader(body), withHeader("Paddle-Signature", header))
	return rec.Code, rec.Body.String()
}

func (e *testEnv) postLemon(body []byte, secret string) (int, string) {
	rec := e.do(http.MethodPost, "/api/lemon/webhook", bytes.NewReader(body), withHeader("X-Signature", billing.SignHex(body, secret)))
	return rec.Code, rec.Body.String()
}

func TestPaddleWebhook_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com"})

	code, body := env.postPaddle(paddleEvent("subscription.created", "active", "owner@example.com", "pri_pro"), paddleSecret)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"received":true}`, body)
	assert.Equal(t, accounts.PlanPro, env.account(t, "user_1").Plan)

	code, _ = env.postPaddle(paddleEvent("subscription.updated", "active", "owner@example.com", "pri_business"), paddleSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, accounts.PlanBusiness, env.account(t, "user_1").Plan)

	code, _ = env.postPaddle(paddleEvent("subscription.canceled", "canceled", "owner@example.com", "pri_business"), paddleSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, accounts.PlanFree, env.account(t, "user_1").Plan)
}

func TestPaddleWebhook_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com"})
	body := paddleEvent("subscription.created", "active", "owner@example.com", "pri_pro")

	code, resp := env.postPaddle(body, "wrong-secret")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp, "Invalid webhook signature")

	rec := env.do(http.MethodPost, "/api/paddle/webhook", bytes.NewReader(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tampered := bytes.Replace(body, []byte("pri_pro"), []byte("pri_business"), 1)
	header := billing.PaddleSignatureHeader(body, "1741600000", paddleSecret)
	rec = env.do(http.MethodPost, "/api/paddle/webhook", bytes.NewReader(tampered), withHeader("Paddle-Signature", header))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, accounts.PlanFree, env.account(t, "user_1").Plan)
}

func TestPaddleWebhook_SecretMissing(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) {
		d.WebhookSecrets = map[billing.Provider]string{billing.ProviderLemon: lemonSecret}
	})

	code, resp := env.postPaddle(paddleEvent("subscription.created", "active", "owner@example.com", "pri_pro"), paddleSecret)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, resp, "Webhook secret not configured")
}

func TestPaddleWebhook_MalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.postPaddle([]byte(`{"event_type":`), paddleSecret)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp, "Invalid webhook payload")
}

func TestPaddleWebhook_UnknownAccountAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.postPaddle(paddleEvent("subscription.created", "active", "stranger@example.com", "pri_pro"), paddleSecret)
	assert.Equal(t, http.StatusOK, code)

	_, err := env.store.GetByEmail(t.Context(), "stranger@example.com")
	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestLemonWebhook(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com"})

	code, _ := env.postLemon(lemonEvent("subscription_created", "active", "owner@example.com", 777), lemonSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, accounts.PlanBusiness, env.account(t, "user_1").Plan)

	code, _ = env.postLemon(lemonEvent("order_created", "paid", "owner@example.com", 777), lemonSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, accounts.PlanBusiness, env.account(t, "user_1").Plan)

	code, _ = env.postLemon(lemonEvent("subscription_expired", "expired", "owner@example.com", 777), lemonSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, accounts.PlanFree, env.account(t, "user_1").Plan)
}

func TestLemonWebhook_Rejections(t *testing.T) {
	body := lemonEvent("subscription_created", "active", "owner@example.com", 1)

	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/lemon/webhook", bytes.NewReader(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No X-Signature header.")

	code, resp := env.postLemon(body, "wrong-secret")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp, "Invalid webhook signature")

	// A missing header is reported before a missing secret.
	noSecret := newTestEnv(t, func(d *Dependencies) { d.WebhookSecrets = nil })
	rec = noSecret.do(http.MethodPost, "/api/lemon/webhook", bytes.NewReader(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, _ = noSecret.postLemon(body, lemonSecret)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRestoreAccess(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com"})
	renews := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	env.paddle.subs["owner@example.com"] = &billing.Subscription{
		ID:       "sub_01",
		Status:   "active",
		PlanID:   "pri_pro",
		RenewsAt: &renews,
	}

	rec := env.do(http.MethodPost, "/api/paddle/restore-access", strings.NewReader(`{"email":" Owner@Example.com "}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":true,"plan":"pro","email":"owner@example.com","expiresAt":"2026-04-10T00:00:00Z"}`, rec.Body.String())
	assert.Equal(t, accounts.PlanPro, env.account(t, "user_1").Plan)

	rec = env.do(http.MethodPost, "/api/paddle/restore-access", strings.NewReader(`{"email":"nobody@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":false}`, rec.Body.String())
}

func TestRestoreAccess_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/paddle/restore-access", strings.NewReader(`{"email":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email is required.", errorMessage(t, rec.Body.Bytes()))

	rec = env.do(http.MethodPost, "/api/paddle/restore-access", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No Lemon restorer is wired in the test env.
	rec = env.do(http.MethodPost, "/api/lemon/restore-access", strings.NewReader(`{"email":"a@example.com"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Payment system not configured.", errorMessage(t, rec.Body.Bytes()))

	env.paddle.err = errors.New("paddle API error: 502")
	rec = env.do(http.MethodPost, "/api/paddle/restore-access", strings.NewReader(`{"email":"a@example.com"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to look up subscription.", errorMessage(t, rec.Body.Bytes()))
}

func TestOrderDetails(t *testing.T) {
	env := newTestEnv(t)
	env.orders.orders["1001"] = &billing.Order{ID: "1001", Email: "buyer@example.com"}

	rec := env.do(http.MethodGet, "/api/lemon/order-details?order_id=1001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"buyer@example.com"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/lemon/order-details?order_id=9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Order not found.", errorMessage(t, rec.Body.Bytes()))

	rec = env.do(http.MethodGet, "/api/lemon/order-details", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing order_id.", errorMessage(t, rec.Body.Bytes()))

	env.orders.err = errors.New("lemonsqueezy API error: 500")
	rec = env.do(http.MethodGet, "/api/lemon/order-details?order_id=1001", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch order details.", errorMessage(t, rec.Body.Bytes()))

	env.orders.configured = false
	rec = env.do(http.MethodGet, "/api/lemon/order-details?order_id=1001", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "LEMONSQUEEZY_API_KEY not configured.", errorMessage(t, rec.Body.Bytes()))
}
