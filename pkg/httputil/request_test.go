package httputil

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Email string `json:"email"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}`))
	require.NoError(t, ParseJSON(req, &dest))
	assert.Equal(t, "a@x.com", dest.Email)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	assert.Error(t, ParseJSON(req, &dest))
}

func TestParseJSONOrError(t *testing.T) {
	var dest map[string]string
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`nope`))

	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadRawBody(t *testing.T) {
	t.Run("returns exact bytes", func(t *testing.T) {
		raw := []byte("{\"a\": 1,\n \"b\":2}")
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))

		body, err := ReadRawBody(w, req, 1024)
		require.NoError(t, err)
		assert.Equal(t, raw, body)
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))

		_, err := ReadRawBody(w, req, 16)
		var appErr *Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, KindValidation, appErr.Kind)
	})
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?order_id=%20123%20", nil)
	assert.Equal(t, "123", ParseQueryString(req, "order_id", ""))
	assert.Equal(t, "def", ParseQueryString(req, "missing", "def"))
}

func TestRequireNonEmpty(t *testing.T) {
	assert.NoError(t, RequireNonEmpty("a", "1", "b", "2"))

	err := RequireNonEmpty("clientName", "Bob", "clientEmail", "  ")
	require.Error(t, err)
	assert.Equal(t, "clientEmail is required", AsError(err).Message)
}
