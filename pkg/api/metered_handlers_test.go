package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/ai"
	"github.com/voicequote/meterd/pkg/quota"
)

const validQuote = `{"transcribedText":"fix the roof","clientName":"Acme","clientEmail":"ops@acme.test","totalPrice":"1200"}`

func quoteBody() *strings.Reader {
	return strings.NewReader(validQuote)
}

func audioBody(t *testing.T, contentType string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="blob"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x1a}, size))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error
}

func TestGenerateQuote_Anonymous(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"proposalText":"Dear Acme, ..."}`, rec.Body.String())

	require.Len(t, env.generator.calls, 1)
	assert.Equal(t, ai.ProposalInput{
		TranscribedText: "fix the roof",
		ClientName:      "Acme",
		ClientEmail:     "ops@acme.test",
		TotalPrice:      "1200",
	}, env.generator.calls[0])
	assert.Equal(t, "20", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "19", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestGenerateQuote_NumericPrice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/generate-quote",
		strings.NewReader(`{"transcribedText":"x","clientName":"A","clientEmail":"a@b.c","totalPrice":1200.5}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1200.5", env.generator.calls[0].TotalPrice)
}

func TestGenerateQuote_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"invalid json", `{`, "Invalid JSON body"},
		{"missing text", `{"clientName":"A","clientEmail":"a@b.c","totalPrice":"1"}`, "transcribedText is required"},
		{"blank name", `{"transcribedText":"x","clientName":"  ","clientEmail":"a@b.c","totalPrice":"1"}`, "clientName is required"},
		{"missing email", `{"transcribedText":"x","clientName":"A","totalPrice":"1"}`, "clientEmail is required"},
		{"missing price", `{"transcribedText":"x","clientName":"A","clientEmail":"a@b.c"}`, "totalPrice is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com"})

			rec := env.do(http.MethodPost, "/api/generate-quote", strings.NewReader(tt.body), withToken("user_1"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec.Body.Bytes()))
			assert.Empty(t, env.generator.calls)
			assert.Equal(t, 0, env.account(t, "user_1").QuoteCount, "failed requests must not use quota")
		})
	}
}

func TestGenerateQuote_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not configured", ai.ErrNotConfigured, http.StatusInternalServerError, "Server configuration error. Please contact support."},
		{"bad key", &openai.APIError{HTTPStatusCode: 401, Message: "Invalid API Key"}, http.StatusUnauthorized, "Invalid API key. Please check your GROQ_API_KEY configuration."},
		{"provider rate limit", &openai.APIError{HTTPStatusCode: 429}, http.StatusTooManyRequests, "The AI service is temporarily rate-limited. Please try again in a moment."},
		{"model missing", &openai.APIError{HTTPStatusCode: 404}, http.StatusServiceUnavailable, "AI model not available. Please try again later."},
		{"empty completion", ai.ErrEmptyResponse, http.StatusInternalServerError, "Failed to generate proposal. Please try again."},
		{"other", errors.New("boom"), http.StatusInternalServerError, "Failed to generate proposal. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.generator.err = tt.err

			rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody())
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec.Body.Bytes()))
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestGenerateQuote_NoGenerator(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.Generator = nil })

	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server configuration error. Please contact support.", errorMessage(t, rec.Body.Bytes()))
}

func TestGenerateQuote_RateLimitedPerClient(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 20; i++ {
		rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withIP("203.0.113.7"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withIP("203.0.113.7, 10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests. Please wait 3600 seconds before generating again.", errorMessage(t, rec.Body.Bytes()))

	// Other clients and other buckets are unaffected.
	rec = env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withIP("198.51.100.1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	body, contentType := audioBody(t, "audio/webm", 2000)
	rec = env.do(http.MethodPost, "/api/transcribe", body, withIP("203.0.113.7"), withHeader("Content-Type", contentType))
	assert.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(time.Hour)
	rec = env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withIP("203.0.113.7"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateQuote_RateLimitRunsBeforeQuota(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com"})

	for i := 0; i < 20; i++ {
		env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withIP("203.0.113.9"))
	}
	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withIP("203.0.113.9"), withToken("user_1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, env.account(t, "user_1").QuoteCount)
}

// A free user with 2 of 3 quotes used can generate once more, is refused,
// and starts over after the monthly reset.
func TestGenerateQuote_FreeQuotaLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{
		ExternalIdentityID: "user_1",
		Email:              "owner@example.com",
		QuoteCount:         2,
		QuotaResetDate:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})

	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withToken("user_1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, env.account(t, "user_1").QuoteCount)

	rec = env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withToken("user_1"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, quota.ExceededMessage, errorMessage(t, rec.Body.Bytes()))
	assert.Len(t, env.generator.calls, 1)

	rec = env.do(http.MethodGet, "/api/user/quota", nil, withToken("user_1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"plan":"free","isPro":false,"quotesRemaining":0,"quoteCount":3,"quotaResetDate":"2026-04-01T00:00:00Z"}`, rec.Body.String())

	env.clock.Advance(22 * 24 * time.Hour)

	rec = env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withToken("user_1"))
	require.Equal(t, http.StatusOK, rec.Code)

	acct := env.account(t, "user_1")
	assert.Equal(t, 1, acct.QuoteCount)
	assert.True(t, acct.QuotaResetDate.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestGenerateQuote_PaidPlanUnlimited(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com", Plan: accounts.PlanPro, QuoteCount: 50})

	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withToken("user_1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateQuote_InvalidTokenIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withToken("forged"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateQuote_FailureReleasesQuota(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com", QuoteCount: 2})
	env.generator.err = errors.New("boom")

	rec := env.do(http.MethodPost, "/api/generate-quote", quoteBody(), withToken("user_1"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 2, env.account(t, "user_1").QuoteCount)
}

func TestTranscribe(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := audioBody(t, "audio/webm;codecs=opus", 4096)
	rec := env.do(http.MethodPost, "/api/transcribe", body, withHeader("Content-Type", contentType))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"fix the roof"}`, rec.Body.String())
	assert.Equal(t, "recording.webm", env.transcriber.filename)
	assert.Equal(t, 4096, env.transcriber.size)

	body, contentType = audioBody(t, "audio/mp4", 4096)
	rec = env.do(http.MethodPost, "/api/transcribe", body, withHeader("Content-Type", contentType))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "recording.mp4", env.transcriber.filename)
}

func TestTranscribe_Validation(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := audioBody(t, "audio/webm", 999)
	rec := env.do(http.MethodPost, "/api/transcribe", body, withHeader("Content-Type", contentType))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Recording too short. Please hold the mic and speak for at least 2 seconds.", errorMessage(t, rec.Body.Bytes()))

	var empty bytes.Buffer
	mw := multipart.NewWriter(&empty)
	require.NoError(t, mw.WriteField("note", "no audio here"))
	require.NoError(t, mw.Close())
	rec = env.do(http.MethodPost, "/api/transcribe", &empty, withHeader("Content-Type", mw.FormDataContentType()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No audio file received.", errorMessage(t, rec.Body.Bytes()))

	rec = env.do(http.MethodPost, "/api/transcribe", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No audio file received.", errorMessage(t, rec.Body.Bytes()))
}

func TestTranscribe_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unreachable", &url.Error{Op: "Post", URL: "https://api.groq.com", Err: errors.New("connection refused")}, http.StatusServiceUnavailable, "Could not reach transcription service. Please check your connection and try again."},
		{"bad key", &openai.APIError{HTTPStatusCode: 401}, http.StatusUnauthorized, "Invalid API key."},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, http.StatusTooManyRequests, "Rate limited. Please wait a moment and try again."},
		{"rejected", &openai.APIError{HTTPStatusCode: 400}, http.StatusBadRequest, "Could not process audio. Please record at least 2 seconds of speech and try again."},
		{"unsupported", &openai.RequestError{HTTPStatusCode: 422, Err: errors.New("unprocessable")}, http.StatusBadRequest, "Audio format not supported. Please try recording again."},
		{"not configured", ai.ErrNotConfigured, http.StatusInternalServerError, "Server configuration error. GROQ_API_KEY is not set."},
		{"other", errors.New("boom"), http.StatusInternalServerError, "Transcription failed. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.transcriber.err = tt.err

			body, contentType := audioBody(t, "audio/webm", 2048)
			rec := env.do(http.MethodPost, "/api/transcribe", body, withHeader("Content-Type", contentType))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec.Body.Bytes()))
		})
	}
}

func TestTranscribe_UsesQuota(t *testing.T) {
	env := newTestEnv(t)
	env.seed(accounts.Account{ExternalIdentityID: "user_1", Email: "owner@example.com", QuoteCount: 3})

	body, contentType := audioBody(t, "audio/webm", 2048)
	rec := env.do(http.MethodPost, "/api/transcribe", body, withHeader("Content-Type", contentType), withToken("user_1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, env.transcriber.size)
}
