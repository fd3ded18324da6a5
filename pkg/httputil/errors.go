package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/voicequote/meterd/pkg/observability"
)

// Kind classifies an error for the HTTP boundary
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindRateLimit
	KindQuota
	KindSignature
	KindConfiguration
	KindUpstream
	KindUnavailable
	KindNotFound
	KindConflict
)

var kindNames = map[Kind]string{
	KindInternal:      "internal",
	KindValidation:    "validation",
	KindAuth:          "auth",
	KindRateLimit:     "rate_limit",
	KindQuota:         "quota",
	KindSignature:     "signature",
	KindConfiguration: "configuration",
	KindUpstream:      "upstream",
	KindUnavailable:   "unavailable",
	KindNotFound:      "not_found",
	KindConflict:      "conflict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Status maps the kind to its HTTP status code
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindSignature:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindQuota:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GenericMessage is returned in place of internal error detail
const GenericMessage = "Internal server error"

// Error is an error with a user-facing message. Message is always safe to
// show; Err carries internal detail and is only logged.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a 400 error
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Unauthorized returns a 401 error
func Unauthorized(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// RateLimited returns a 429 error carrying the Retry-After seconds
func RateLimited(message string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimit, Message: message, RetryAfter: retryAfter}
}

// QuotaExceeded returns a 403 error
func QuotaExceeded(message string) *Error {
	return &Error{Kind: KindQuota, Message: message}
}

// InvalidSignature returns a 400 error for failed webhook authentication
func InvalidSignature(message string) *Error {
	return &Error{Kind: KindSignature, Message: message}
}

// Misconfigured returns a 500 error for a missing secret or credential
func Misconfigured(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// Upstream returns a 500 error for a failed provider call
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Unavailable returns a 503 error
func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// NotFound returns a 404 error
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict creates a 409 error
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Internal wraps an unexpected error; its detail is never surfaced
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: GenericMessage, Err: err}
}

// AsError converts any error into an *Error, treating unknown errors as internal
func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// WriteAppError logs err under the component tag and writes {"error": message}
func WriteAppError(w http.ResponseWriter, r *http.Request, component string, err error) {
	appErr := AsError(err)
	status := appErr.Kind.Status()

	logger := observability.FromContext(r.Context()).
		WithComponent(component).
		WithField("kind", appErr.Kind.String()).
		WithField("status", status)
	if appErr.Err != nil {
		logger = logger.WithError(appErr.Err)
	}
	if status >= http.StatusInternalServerError {
		logger.Error(appErr.Message)
	} else {
		logger.Debug(appErr.Message)
	}

	message := appErr.Message
	if message == "" {
		message = http.StatusText(status)
	}
	if appErr.Kind == KindRateLimit && appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	WriteErrorMessage(w, status, message)
}
