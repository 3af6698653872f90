package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockBackend is a configurable HTTP test server that simulates a collaborator
// service. It allows configuring per-operation responses and records all
// received requests for later assertion.
type MockBackend struct {
	t         *testing.T
	serviceID string
	server    *httptest.Server

	mu           sync.RWMutex
	operations   map[string]*operationConfig
	receivedByOp map[string][]*RecordedRequest
}

// RecordedRequest captures the details of a request received by the mock backend.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	RawBody     []byte
	ReceivedAt  time.Time
}

// operationConfig holds the configured responses for a single operation.
type operationConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// OperationMock is a builder for configuring mock responses for a specific operation.
type OperationMock struct {
	backend *MockBackend
	opID    string
}

// operationRoute maps an operation ID to its HTTP method and path pattern.
type operationRoute struct {
	method      string
	pathPattern string
}

// newMockBackend creates a new mock backend and starts the HTTP test server.
func newMockBackend(t *testing.T, serviceID string, operationPaths map[string]operationRoute) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:            t,
		serviceID:    serviceID,
		operations:   make(map[string]*operationConfig),
		receivedByOp: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for opID, route := range operationPaths {
		pattern := route.method + " " + route.pathPattern
		mux.HandleFunc(pattern, mb.handleOperation(opID))
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)

	return mb
}

// subjectsRoutes returns the operation routes for the subjects service.
func subjectsRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"getSubject": {method: "GET", pathPattern: "/subjects/{id}"},
	}
}

// mediaRoutes returns the operation routes for the media-storage service.
func mediaRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"upload": {method: "POST", pathPattern: "/media"},
	}
}

// invoicingRoutes returns the operation routes for the invoicing service.
func invoicingRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"createInvoice": {method: "POST", pathPattern: "/subjects/{id}/invoices"},
	}
}

// ledgerRoutes returns the operation routes for the property ledger service.
func ledgerRoutes() map[string]operationRoute {
	return map[string]operationRoute{
		"commitTermination": {method: "POST", pathPattern: "/subjects/{id}/termination"},
	}
}

// URL returns the base URL of the mock backend server.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// OnOperation returns a builder for configuring responses for the named operation.
func (mb *MockBackend) OnOperation(operationID string) *OperationMock {
	return &OperationMock{
		backend: mb,
		opID:    operationID,
	}
}

// RespondWith configures the operation to respond with the given status and body.
func (om *OperationMock) RespondWith(status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{
		status: status,
		body:   body,
	})
	return om
}

// RespondWithError configures the operation to respond with an error envelope.
func (om *OperationMock) RespondWithError(status int, code, message string) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{
		status: status,
		body: map[string]any{
			"code":    code,
			"message": message,
		},
	})
	return om
}

// RespondWithDelay configures a delayed response to simulate slow backends.
func (om *OperationMock) RespondWithDelay(delay time.Duration, status int, body any) *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{
		status: status,
		body:   body,
		delay:  delay,
	})
	return om
}

// RespondWithConnectionError configures the operation to close the connection
// to simulate a backend failure.
func (om *OperationMock) RespondWithConnectionError() *OperationMock {
	om.backend.addResponse(om.opID, &mockResponse{
		connError: true,
	})
	return om
}

func (mb *MockBackend) addResponse(opID string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.operations[opID]
	if !ok {
		cfg = &operationConfig{}
		mb.operations[opID] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handleOperation(opID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			ReceivedAt:  time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.QueryParams[key] = values[0]
			}
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			if len(body) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil {
					rec.Body = parsed
				}
			}
		}

		mb.mu.Lock()
		mb.receivedByOp[opID] = append(mb.receivedByOp[opID], rec)
		mb.mu.Unlock()

		resp := mb.getNextResponse(opID)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		if resp.connError {
			// Hijack the connection and close it to simulate a connection error.
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				if conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

func (mb *MockBackend) getNextResponse(opID string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.operations[opID]
	mb.mu.RUnlock()
	if !ok || cfg == nil {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if len(cfg.responses) == 0 {
		return nil
	}

	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// AssertCalled verifies that the operation was called the expected number of times.
func (mb *MockBackend) AssertCalled(t *testing.T, operationID string, expectedCount int) {
	t.Helper()
	mb.mu.RLock()
	actual := len(mb.receivedByOp[operationID])
	mb.mu.RUnlock()
	if actual != expectedCount {
		t.Errorf("mock %s: operation %q called %d times, want %d", mb.serviceID, operationID, actual, expectedCount)
	}
}

// AssertNotCalled verifies that the operation was never called.
func (mb *MockBackend) AssertNotCalled(t *testing.T, operationID string) {
	t.Helper()
	mb.AssertCalled(t, operationID, 0)
}

// CallCount returns how many times the operation was called.
func (mb *MockBackend) CallCount(operationID string) int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.receivedByOp[operationID])
}

// LastRequest returns the last request received for the given operation.
// Returns nil if no requests were recorded.
func (mb *MockBackend) LastRequest(operationID string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByOp[operationID]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AllRequests returns all requests received for the given operation.
func (mb *MockBackend) AllRequests(operationID string) []*RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByOp[operationID]
	copied := make([]*RecordedRequest, len(reqs))
	copy(copied, reqs)
	return copied
}

// Reset clears all recorded requests and configured responses for the backend.
func (mb *MockBackend) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.operations = make(map[string]*operationConfig)
	mb.receivedByOp = make(map[string][]*RecordedRequest)
}

// --- Fixtures ---

// SubjectFixture returns a subject response in the customer store's shape.
func SubjectFixture(id, label, unitLabel string) map[string]any {
	return map[string]any{
		"id":         id,
		"label":      label,
		"unit_label": unitLabel,
	}
}

// MediaAssetFixture returns a media-storage upload response.
func MediaAssetFixture(url, contentKind string) map[string]any {
	return map[string]any{
		"url":          url,
		"content_kind": contentKind,
	}
}

// ErrorFixture returns an error response in the collaborator envelope shape.
func ErrorFixture(code, message string) map[string]any {
	return map[string]any{
		"code":    code,
		"message": message,
	}
}
