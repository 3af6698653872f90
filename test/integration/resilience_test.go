package integration

import (
	"testing"
	"time"

	"github.com/propfolio/vacate/internal/config"
)

func TestResilience_retriesIdempotentSubjectLookup(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	// First attempt fails with a retryable status, second succeeds.
	h.Subjects.OnOperation("getSubject").
		RespondWithError(503, "UNAVAILABLE", "maintenance window").
		RespondWith(200, SubjectFixture("lease-300", "Ana Petrova", "Unit 4B"))

	var subject map[string]any
	h.AssertJSON(t, h.GET("/ui/subjects/lease-300", token), 200, &subject)
	if subject["label"] != "Ana Petrova" {
		t.Errorf("label = %v", subject["label"])
	}
	h.Subjects.AssertCalled(t, "getSubject", 2)
}

func TestResilience_invoiceCommitIsNotRetriedAndBufferSurvives(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	h.Invoicing.OnOperation("createInvoice").
		RespondWithError(500, "INTERNAL", "database down").
		RespondWith(200, map[string]string{"status": "ok"})

	items := map[string]any{
		"items": []map[string]any{
			{"description": "Carpet cleaning", "amount": 120.5, "quantity": 1},
		},
	}

	// The POST is not idempotent, so the failure is surfaced after exactly
	// one wire call and nothing is committed.
	var envelope map[string]any
	h.AssertJSON(t, h.POST("/ui/terminations/lease-310/invoice-items", items, token), 502, &envelope)
	h.Invoicing.AssertCalled(t, "createInvoice", 1)

	var desc descriptor
	h.AssertJSON(t, h.GET("/ui/terminations/lease-310", token), 200, &desc)
	if len(desc.State.InvoiceItems) != 0 {
		t.Fatalf("invoice_items = %d after failed commit, want 0", len(desc.State.InvoiceItems))
	}

	// The same batch can simply be resubmitted.
	h.AssertJSON(t, h.POST("/ui/terminations/lease-310/invoice-items", items, token), 200, &desc)
	if len(desc.State.InvoiceItems) != 1 {
		t.Errorf("invoice_items = %d after retry, want 1", len(desc.State.InvoiceItems))
	}
	h.Invoicing.AssertCalled(t, "createInvoice", 2)
}

func TestResilience_mediaBatchIsAllOrNothing(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	// Second upload in the batch fails; the first asset must not be kept.
	h.Media.OnOperation("upload").
		RespondWith(200, MediaAssetFixture("https://media.example/one.jpg", "image/jpeg")).
		RespondWithError(500, "INTERNAL", "storage full")

	var envelope map[string]any
	resp := h.UploadFiles("/ui/terminations/lease-320/media", map[string][]byte{
		"one.jpg": []byte("fake-jpeg"),
		"two.jpg": []byte("fake-jpeg"),
	}, token)
	h.AssertJSON(t, resp, 502, &envelope)
	if errCode(envelope) != "UPLOAD_FAILED" {
		t.Errorf("code = %v, want UPLOAD_FAILED", errCode(envelope))
	}

	var desc descriptor
	h.AssertJSON(t, h.GET("/ui/terminations/lease-320", token), 200, &desc)
	if len(desc.State.Media) != 0 {
		t.Errorf("media = %d after failed batch, want 0", len(desc.State.Media))
	}
}

func TestResilience_ledgerFailureKeepsWorkflowActive(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	// Walk to the final stage.
	var desc descriptor
	for i := 0; i < 4; i++ {
		h.AssertJSON(t, h.POST("/ui/terminations/lease-330/next", nil, token), 200, &desc)
	}
	if desc.ActiveStageKey != "vacated" {
		t.Fatalf("stage = %q, want vacated", desc.ActiveStageKey)
	}

	h.Ledger.OnOperation("commitTermination").
		RespondWithError(500, "INTERNAL", "ledger outage").
		RespondWith(200, map[string]string{"status": "ok"})

	var envelope map[string]any
	h.AssertJSON(t, h.POST("/ui/terminations/lease-330/submit", nil, token), 502, &envelope)

	// Nothing moved; the user can retry from the same place.
	h.AssertJSON(t, h.GET("/ui/terminations/lease-330", token), 200, &desc)
	if desc.Status != "active" || desc.ActiveStageKey != "vacated" {
		t.Fatalf("after failed submit: status %q stage %q, want active/vacated", desc.Status, desc.ActiveStageKey)
	}

	h.AssertJSON(t, h.POST("/ui/terminations/lease-330/submit", nil, token), 200, &desc)
	if desc.Status != "completed" {
		t.Errorf("status = %q after retried submit, want completed", desc.Status)
	}
	h.Ledger.AssertCalled(t, "commitTermination", 2)
}

func TestResilience_circuitBreakerShedsLoad(t *testing.T) {
	h := NewTestHarness(t,
		WithRetry(config.RetryConfig{MaxAttempts: 1, IdempotentOnly: true}),
		WithCircuitBreaker(config.CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Cooldown:         time.Minute,
		}),
	)
	token := h.GenerateToken(ManagerClaims())

	h.Subjects.OnOperation("getSubject").
		RespondWithError(503, "UNAVAILABLE", "down")

	// Two failures trip the breaker.
	h.AssertStatus(t, h.GET("/ui/subjects/lease-340", token), 502)
	h.AssertStatus(t, h.GET("/ui/subjects/lease-340", token), 502)

	// The third request is rejected without reaching the wire.
	h.AssertStatus(t, h.GET("/ui/subjects/lease-340", token), 502)
	h.Subjects.AssertCalled(t, "getSubject", 2)
}

func TestResilience_connectionFailureSurfacesAsUnavailable(t *testing.T) {
	h := NewTestHarness(t, WithRetry(config.RetryConfig{MaxAttempts: 1, IdempotentOnly: true}))
	token := h.GenerateToken(ManagerClaims())

	h.Subjects.OnOperation("getSubject").RespondWithConnectionError()

	var envelope map[string]any
	h.AssertJSON(t, h.GET("/ui/subjects/lease-350", token), 502, &envelope)
	if errCode(envelope) != "BACKEND_UNAVAILABLE" {
		t.Errorf("code = %v, want BACKEND_UNAVAILABLE", errCode(envelope))
	}
}

func TestResilience_readinessReflectsCollaboratorHealth(t *testing.T) {
	h := NewTestHarness(t)

	var ready map[string]any
	h.AssertJSON(t, h.GET("/ui/ready", ""), 200, &ready)
	if ready["status"] != "ready" {
		t.Errorf("status = %v, want ready", ready["status"])
	}
	checks, _ := ready["checks"].(map[string]any)
	if len(checks) != 5 {
		t.Errorf("checks = %d, want 5 (store plus four collaborators)", len(checks))
	}
}
