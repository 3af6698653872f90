// Package integration provides a reusable test harness for end-to-end
// testing of the vacate workflow server. It starts a full HTTP server with
// mock collaborator services, an in-memory checkpoint store, and a test JWT
// issuer.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/propfolio/vacate/internal/backend"
	"github.com/propfolio/vacate/internal/checkpoint"
	"github.com/propfolio/vacate/internal/config"
	"github.com/propfolio/vacate/internal/observability"
	"github.com/propfolio/vacate/internal/termination"
	"github.com/propfolio/vacate/internal/transport"
)

// TestHarness encapsulates a fully wired server instance with mock
// collaborator services for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Store   *checkpoint.MemoryStore
	Service *termination.Service

	Subjects  *MockBackend
	Media     *MockBackend
	Invoicing *MockBackend
	Ledger    *MockBackend

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout time.Duration
	retry          config.RetryConfig
	breaker        config.CircuitBreakerConfig
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithRetry overrides the retry policy applied to every collaborator client.
func WithRetry(retry config.RetryConfig) HarnessOption {
	return func(c *harnessConfig) {
		c.retry = retry
	}
}

// WithCircuitBreaker overrides the breaker settings applied to every
// collaborator client.
func WithCircuitBreaker(breaker config.CircuitBreakerConfig) HarnessOption {
	return func(c *harnessConfig) {
		c.breaker = breaker
	}
}

// NewTestHarness creates and starts a full server test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		retry: config.RetryConfig{
			MaxAttempts:    2,
			BackoffInitial: 5 * time.Millisecond,
			BackoffMax:     20 * time.Millisecond,
			IdempotentOnly: true,
		},
		// High threshold so ordinary failure scenarios never trip the
		// breaker; the breaker tests lower it explicitly.
		breaker: config.CircuitBreakerConfig{
			FailureThreshold: 50,
			SuccessThreshold: 1,
			Cooldown:         200 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	h.Subjects = newMockBackend(t, config.ServiceSubjects, subjectsRoutes())
	h.Media = newMockBackend(t, config.ServiceMedia, mediaRoutes())
	h.Invoicing = newMockBackend(t, config.ServiceInvoicing, invoicingRoutes())
	h.Ledger = newMockBackend(t, config.ServiceLedger, ledgerRoutes())

	h.issuer = newTokenIssuer(t)
	h.Store = checkpoint.NewMemoryStore()

	serviceCfg := func(mb *MockBackend) config.ServiceConfig {
		return config.ServiceConfig{
			BaseURL:        mb.URL(),
			Timeout:        5 * time.Second,
			Retry:          hc.retry,
			CircuitBreaker: hc.breaker,
		}
	}

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Identity.Issuer = h.issuer.Issuer()
	cfg.Identity.Audience = h.issuer.Audience()
	cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	cfg.Services = map[string]config.ServiceConfig{
		config.ServiceSubjects:  serviceCfg(h.Subjects),
		config.ServiceMedia:     serviceCfg(h.Media),
		config.ServiceInvoicing: serviceCfg(h.Invoicing),
		config.ServiceLedger:    serviceCfg(h.Ledger),
	}
	h.cfg = cfg

	subjectsClient := backend.NewClient(config.ServiceSubjects, cfg.Services[config.ServiceSubjects], nil)
	mediaClient := backend.NewClient(config.ServiceMedia, cfg.Services[config.ServiceMedia], nil)
	invoicingClient := backend.NewClient(config.ServiceInvoicing, cfg.Services[config.ServiceInvoicing], nil)
	ledgerClient := backend.NewClient(config.ServiceLedger, cfg.Services[config.ServiceLedger], nil)

	h.Service = termination.NewService(h.Store, termination.Collaborators{
		Subjects: backend.NewSubjectClient(subjectsClient),
		Media:    backend.NewMediaClient(mediaClient),
		Invoices: backend.NewInvoiceClient(invoicingClient),
		Ledger:   backend.NewLedgerClient(ledgerClient),
	}, nil, termination.WithIdempotencyStore(termination.NewMemoryIdempotencyStore(), time.Hour))

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour)

	router := transport.NewRouter(transport.Dependencies{
		Config:  cfg,
		Service: h.Service,
		Readiness: observability.ReadinessChecks{
			CheckpointStore: h.Store,
			Collaborators: map[string]observability.HealthChecker{
				config.ServiceSubjects:  subjectsClient,
				config.ServiceMedia:     mediaClient,
				config.ServiceInvoicing: invoicingClient,
				config.ServiceLedger:    ledgerClient,
			},
		},
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token)
}

// POST performs an authenticated POST request with a JSON body. A nil body
// sends an empty request.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token)
}

// UploadFiles performs an authenticated multipart POST with one form file
// per entry in files (filename to content).
func (h *TestHarness) UploadFiles(path string, files map[string][]byte, token string) *http.Response {
	h.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			h.t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			h.t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		h.t.Fatalf("close multipart writer: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), "POST", h.server.URL+path, &buf)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		h.t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func httpClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// errCode pulls the code field out of a decoded error response.
func errCode(body map[string]any) any {
	envelope, _ := body["error"].(map[string]any)
	return envelope["code"]
}

// --- Default test claims ---

// ManagerClaims returns TestClaims for a property manager user.
func ManagerClaims() TestClaims {
	return TestClaims{
		ActorID:  "user-manager",
		TenantID: "hilltop-pm",
		Email:    "manager@hilltop.example.com",
		Roles:    []string{"property-manager"},
	}
}

// AgentClaims returns TestClaims for a leasing agent in the same tenant.
func AgentClaims() TestClaims {
	return TestClaims{
		ActorID:  "user-agent",
		TenantID: "hilltop-pm",
		Email:    "agent@hilltop.example.com",
		Roles:    []string{"leasing-agent"},
	}
}

// OtherTenantClaims returns TestClaims for a user in an unrelated tenant.
func OtherTenantClaims() TestClaims {
	return TestClaims{
		ActorID:  "user-rival",
		TenantID: "lakeside-pm",
		Email:    "manager@lakeside.example.com",
		Roles:    []string{"property-manager"},
	}
}
