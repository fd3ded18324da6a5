package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/voicequote/meterd/pkg/observability"
)

// ErrNotConfigured is returned when a provider API key is missing
var ErrNotConfigured = errors.New("billing provider not configured")

// ClientConfig holds the settings shared by the provider API clients
type ClientConfig struct {
	BaseURL string
	APIKey  string

	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = 200 * time.Millisecond
	}
	if c.RetryWaitMax <= 0 {
		c.RetryWaitMax = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = observability.NewNopLogger()
	}
	return c
}

// APIError is a non-2xx response from a provider API
type APIError struct {
	Service    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d", e.Service, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from a provider API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// apiClient issues authenticated GETs against one provider API
type apiClient struct {
	service string
	cfg     ClientConfig
	http    *retryablehttp.Client
	headers map[string]string
}

func newAPIClient(service string, cfg ClientConfig, headers map[string]string) *apiClient {
	cfg = cfg.withDefaults()

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	logger := cfg.Logger.WithComponent(service)
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.WithFields(map[string]interface{}{
				"url":     req.URL.Path,
				"attempt": attempt,
			}).Warn("Retrying provider request")
		}
	}

	return &apiClient{service: service, cfg: cfg, http: rc, headers: headers}
}

func (c *apiClient) configured() bool {
	return c.cfg.APIKey != ""
}

// getJSON fetches url and decodes the body into out
func (c *apiClient) getJSON(ctx context.Context, operation, url string, out interface{}) error {
	if !c.configured() {
		return ErrNotConfigured
	}
	defer c.cfg.Metrics.ObserveUpstream(c.service, operation, time.Now())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", c.service, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &APIError{Service: c.service, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}
	return nil
}
