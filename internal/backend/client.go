// Package backend holds the typed HTTP clients for the external services
// the workflow depends on: subject lookup, media storage, invoicing and the
// property ledger. All clients share one transport layer with per-service
// timeouts, retry with exponential backoff and a circuit breaker.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/propfolio/vacate/internal/config"
	"github.com/propfolio/vacate/internal/observability"
	"github.com/propfolio/vacate/model"
)

const maxResponseBytes = 10 << 20

// Client is the shared per-service HTTP plumbing.
type Client struct {
	serviceID string
	cfg       config.ServiceConfig
	http      *http.Client
	breaker   *Breaker
	metrics   *observability.Metrics
}

// NewClient builds the plumbing for one collaborator service. metrics may
// be nil.
func NewClient(serviceID string, cfg config.ServiceConfig, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cb := cfg.CircuitBreaker
	return &Client{
		serviceID: serviceID,
		cfg:       cfg,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Cooldown),
		metrics: metrics,
	}
}

// HealthCheck probes the service's health endpoint. It bypasses the retry
// and breaker path so a readiness probe reflects the raw service state.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("backend: %s health request: %w", c.serviceID, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s health: %w", c.serviceID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("backend: %s health: status %d", c.serviceID, resp.StatusCode)
	}
	return nil
}

// doJSON sends a JSON request and decodes a JSON response into out (when out
// is non-nil).
func (c *Client) doJSON(ctx context.Context, rctx *model.RequestContext, method, path string, body, out any) error {
	var payload []byte
	contentType := ""
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: marshal %s request: %w", c.serviceID, err)
		}
		contentType = "application/json"
	}
	return c.do(ctx, rctx, method, path, contentType, payload, out)
}

// do sends a request with retry, backoff and breaker protection. payload
// must be rebuildable per attempt, so it is a byte slice, not a reader.
func (c *Client) do(ctx context.Context, rctx *model.RequestContext, method, path, contentType string, payload []byte, out any) error {
	retryCfg := c.cfg.Retry
	maxAttempts := retryCfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	canRetry := isIdempotentMethod(method) || !retryCfg.IdempotentOnly

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.RecordBackendRetry(c.serviceID)
			select {
			case <-ctx.Done():
				return model.NewBackendTimeoutError()
			case <-time.After(backoffDelay(retryCfg, attempt)):
			}
		}

		err := c.doOnce(ctx, rctx, method, path, contentType, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !canRetry || !isRetryable(err) {
			return err
		}
		slog.Debug("backend: retrying",
			"service", c.serviceID,
			"attempt", attempt+1,
			"max", maxAttempts,
			"error", err,
		)
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, rctx *model.RequestContext, method, path, contentType string, payload []byte, out any) error {
	if err := c.breaker.Allow(); err != nil {
		c.observeBreaker()
		return model.NewBackendUnavailableError()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build %s request: %w", c.serviceID, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	setContextHeaders(req.Header, rctx)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.observeBreaker()
		c.metrics.RecordBackendRequest(c.serviceID, method+" "+path, 0, time.Since(start))
		if ctx.Err() != nil || isTimeoutError(err) {
			return model.NewBackendTimeoutError()
		}
		if isConnectionError(err) {
			return model.NewBackendUnavailableError()
		}
		return fmt.Errorf("backend: %s request failed: %w", c.serviceID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.breaker.RecordFailure()
		c.observeBreaker()
		return fmt.Errorf("backend: read %s response: %w", c.serviceID, err)
	}

	c.metrics.RecordBackendRequest(c.serviceID, method+" "+path, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else if resp.StatusCode < 400 {
		// 4xx are caller errors, not collaborator health signals.
		c.breaker.RecordSuccess()
	}
	c.observeBreaker()

	if resp.StatusCode >= 400 {
		return statusError(c.serviceID, resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("backend: decode %s response: %w", c.serviceID, err)
		}
	}
	return nil
}

func (c *Client) observeBreaker() {
	c.metrics.SetBackendCircuitBreakerState(c.serviceID, float64(c.breaker.State()))
}

// statusError maps a collaborator's error response onto the envelope
// taxonomy. Auth failures pass through untouched so the session owner can
// redirect; server-side failures read as transient.
func statusError(serviceID string, status int, body []byte) error {
	msg := extractMessage(body)
	switch {
	case status == http.StatusUnauthorized:
		if msg == "" {
			msg = "session rejected by " + serviceID
		}
		return model.NewUnauthorizedError(msg)
	case status == http.StatusForbidden:
		if msg == "" {
			msg = "access denied by " + serviceID
		}
		return model.NewForbiddenError(msg)
	case status == http.StatusNotFound:
		if msg == "" {
			msg = serviceID + " resource not found"
		}
		return model.NewNotFoundError(msg)
	case status == http.StatusConflict:
		if msg == "" {
			msg = serviceID + " reported a conflict"
		}
		return model.NewConflictError(msg)
	case status == http.StatusGatewayTimeout:
		return model.NewBackendTimeoutError()
	case status >= 500:
		return model.NewBackendUnavailableError()
	default:
		if msg == "" {
			msg = fmt.Sprintf("%s rejected the request with status %d", serviceID, status)
		}
		return model.NewBadRequestError(msg)
	}
}

// extractMessage pulls a human-readable message out of a JSON error body.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return envelope.Message
}

func setContextHeaders(h http.Header, rctx *model.RequestContext) {
	if rctx == nil {
		return
	}
	h.Set("X-Tenant-Id", sanitizeHeader(rctx.TenantID))
	h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	h.Set("X-Actor-Id", sanitizeHeader(rctx.ActorID))
}

// sanitizeHeader strips newlines and carriage returns to prevent header
// injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// isRetryable reports whether a failed attempt is worth repeating. Envelope
// errors are final decisions (auth, not found, breaker open); transport
// timeouts and availability map to envelopes too, so only the transient
// codes retry.
func isRetryable(err error) bool {
	switch model.ErrorCode(err) {
	case model.ErrBackendUnavailable, model.ErrBackendTimeout:
		return true
	}
	var envErr *model.ErrorEnvelope
	return !errors.As(err, &envErr)
}

func isConnectionError(err error) bool {
	// An abruptly closed connection surfaces as EOF, not a net.OpError.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func backoffDelay(cfg config.RetryConfig, attempt int) time.Duration {
	initial := cfg.BackoffInitial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	max := cfg.BackoffMax
	if max <= 0 {
		max = 2 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if delay > max {
			return max
		}
	}
	return delay
}
