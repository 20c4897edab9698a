package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"vigil/internal/approval"
	"vigil/internal/assignment"
	"vigil/internal/identity"
	"vigil/internal/notify"
	"vigil/internal/workflow/audit"
	"vigil/internal/workflow/models"
	"vigil/internal/workflow/notice"
	"vigil/internal/workflow/penalty"
	"vigil/internal/workflow/store"
)

const testSigningKey = "test-signing-key"

type testEnv struct {
	router    http.Handler
	validator *identity.JWTValidator
	store     *store.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memory := store.NewMemory()
	registry := assignment.NewMemoryRegistry()
	registry.Assign("agency-1", "firm-1")
	sink := notify.NewMemorySink()

	validator := identity.NewJWTValidator(testSigningKey, "vigil-test")
	router := NewRouter(RouterParams{
		Logger:    logger,
		Validator: validator,
		Health:    NewHealthHandler(nil),
		API: []Registrar{
			NewAuditHandler(audit.NewService(memory, registry, sink, nil, logger)),
			NewNoticeHandler(notice.NewService(memory, sink, nil, logger, 4)),
			NewPenaltyHandler(penalty.NewService(memory, sink, nil, logger)),
			NewApprovalHandler(approval.NewService(approval.NewMemoryStore(), time.Minute)),
		},
	})
	return &testEnv{router: router, validator: validator, store: memory}
}

func (e *testEnv) token(t *testing.T, p identity.Principal) string {
	t.Helper()
	token, err := e.validator.IssueToken(p, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/audits", "", map[string]string{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHealthEndpointsOpen(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

// TestWorkflowEndToEnd drives the whole chain over HTTP: audit, observation,
// completion, notice, response, resolution, closure, penalty, scorecard.
func TestWorkflowEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	auditorToken := env.token(t, identity.Principal{UserID: "u-auditor", Role: identity.RoleAuditor, FirmID: "firm-1"})
	adminToken := env.token(t, identity.Principal{UserID: "u-admin", Role: identity.RoleAdmin})
	agencyToken := env.token(t, identity.Principal{UserID: "u-agency", Role: identity.RoleAgencyUser, AgencyID: "agency-1"})

	// Auditor opens the audit and records a finding.
	rec := env.do(t, http.MethodPost, "/audits", auditorToken, map[string]any{
		"agency_id":           "agency-1",
		"firm_id":             "firm-1",
		"auditor_name":        "R. Mehta",
		"auditor_employee_id": "EMP-42",
		"audit_date":          "2026-03-10T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create audit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var createdAudit models.Audit
	decodeInto(t, rec, &createdAudit)

	rec = env.do(t, http.MethodPost, "/audits/"+createdAudit.ID.String()+"/observations", auditorToken, map[string]any{
		"number":      1,
		"category":    "billing",
		"severity":    "HIGH",
		"description": "invoices missing mandatory fields",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record observation: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var obs models.Observation
	decodeInto(t, rec, &obs)

	rec = env.do(t, http.MethodPost, "/audits/"+createdAudit.ID.String()+"/complete", auditorToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete audit: expected 200, got %d", rec.Code)
	}

	// Admin issues the show-cause notice.
	rec = env.do(t, http.MethodPost, "/notices", adminToken, map[string]any{
		"agency_id":       "agency-1",
		"observation_ids": []uuid.UUID{obs.ID},
		"subject":         "Q1 billing findings",
		"response_due":    "2026-05-01T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue notice: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var issued models.ShowCauseNotice
	decodeInto(t, rec, &issued)

	// Agency user cannot issue notices.
	rec = env.do(t, http.MethodPost, "/notices", agencyToken, map[string]any{
		"agency_id":       "agency-1",
		"observation_ids": []uuid.UUID{obs.ID},
		"subject":         "self-issued",
		"response_due":    "2026-05-01T00:00:00Z",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("agency issuing notice: expected 403, got %d", rec.Code)
	}

	// Agency responds, admin resolves and closes.
	rec = env.do(t, http.MethodPost, "/notices/"+issued.ID.String()+"/responses", agencyToken, map[string]any{
		"content": "we accept the finding",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit response: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/notices/"+issued.ID.String()+"/observations/"+obs.ID.String()+"/resolve", adminToken, map[string]any{
		"outcome": "AGENCY_ACCEPTED",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("resolve observation: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/notices/"+issued.ID.String()+"/close", adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close notice: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	// Penalty on the resolved observation, then the scorecard.
	rec = env.do(t, http.MethodPut, "/observations/"+obs.ID.String()+"/penalty", adminToken, map[string]any{
		"amount_minor":    250000,
		"reason":          "repeat billing lapse",
		"deduction_month": "2026-05",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign penalty: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/audits/"+createdAudit.ID.String()+"/scorecard", adminToken, map[string]any{
		"audit_period":  "2026-Q1",
		"audit_score":   72.5,
		"audit_grade":   "B",
		"justification": "one high finding, accepted",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("publish scorecard: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Scorecard publication closed the audit.
	rec = env.do(t, http.MethodGet, "/audits/"+createdAudit.ID.String(), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get audit: expected 200, got %d", rec.Code)
	}
	var closedAudit models.Audit
	decodeInto(t, rec, &closedAudit)
	if closedAudit.Status != models.AuditClosed {
		t.Fatalf("expected audit CLOSED after scorecard, got %s", closedAudit.Status)
	}
}

func TestBulkIssuanceOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, identity.Principal{UserID: "u-admin", Role: identity.RoleAdmin})

	// Seed one valid agency directly in the store.
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	seeded := &models.Audit{ID: uuid.New(), AgencyID: "agency-1", FirmID: "firm-1", Status: models.AuditCompleted, CreatedAt: now, UpdatedAt: now}
	if err := env.store.CreateAudit(ctx, seeded); err != nil {
		t.Fatalf("seed audit: %v", err)
	}
	obs := &models.Observation{ID: uuid.New(), AuditID: seeded.ID, Number: 1, Severity: models.SeverityLow, Status: models.ObservationPending, CreatedAt: now, UpdatedAt: now}
	if err := env.store.CreateObservation(ctx, obs); err != nil {
		t.Fatalf("seed observation: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/notices/bulk", adminToken, map[string]any{
		"subject":      "quarterly findings",
		"response_due": "2026-05-01T00:00:00Z",
		"items": []map[string]any{
			{"agency_id": "agency-1", "observation_ids": []uuid.UUID{obs.ID}},
			{"agency_id": "agency-2", "observation_ids": []uuid.UUID{uuid.New()}},
		},
	})
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("bulk issue: expected 207, got %d: %s", rec.Code, rec.Body.String())
	}

	var results []notice.BulkResult
	decodeInto(t, rec, &results)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].NoticeID == nil {
		t.Fatalf("expected first item to succeed: %+v", results[0])
	}
	if results[1].NoticeID != nil || results[1].Code == "" {
		t.Fatalf("expected second item to fail with a code: %+v", results[1])
	}
}
