package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrNotConfigured is returned when no API key is set
	ErrNotConfigured = errors.New("ai: API key is not configured")

	// ErrEmptyResponse is returned when the model produced no text
	ErrEmptyResponse = errors.New("ai: provider returned an empty response")
)

// ErrorKind groups provider failures by how a caller should react
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotConfigured
	KindAuth
	KindRateLimited
	KindModelUnavailable
	KindConnection
	KindRejectedInput
	KindUnsupportedFormat
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindConnection:
		return "connection"
	case KindRejectedInput:
		return "rejected_input"
	case KindUnsupportedFormat:
		return "unsupported_format"
	default:
		return "other"
	}
}

// Classify maps an error from GroqClient to an ErrorKind
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, ErrNotConfigured) {
		return KindNotConfigured
	}
	if status := statusCode(err); status != 0 {
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindAuth
		case http.StatusTooManyRequests:
			return KindRateLimited
		case http.StatusNotFound:
			return KindModelUnavailable
		case http.StatusUnprocessableEntity:
			return KindUnsupportedFormat
		case http.StatusBadRequest:
			return KindRejectedInput
		}
		return KindOther
	}
	if isConnectionError(err) {
		return KindConnection
	}
	return KindOther
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryable reports whether a chat request may be sent again
func retryable(err error) bool {
	if status := statusCode(err); status != 0 {
		return status >= http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return isConnectionError(err)
}
