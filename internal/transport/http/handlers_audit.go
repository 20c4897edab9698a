package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/identity"
	"vigil/internal/workflow/audit"
	"vigil/internal/workflow/models"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/httputil"
	"vigil/pkg/requestcontext"
)

// AuditHandler wires audit endpoints to the audit service.
type AuditHandler struct {
	service *audit.Service
}

func NewAuditHandler(service *audit.Service) *AuditHandler {
	return &AuditHandler{service: service}
}

// Register mounts audit endpoints on the router.
func (h *AuditHandler) Register(r chi.Router) {
	r.Post("/audits", h.handleCreate)
	r.Get("/audits/{auditID}", h.handleGet)
	r.Post("/audits/{auditID}/complete", h.handleComplete)
	r.Post("/audits/{auditID}/observations", h.handleRecordObservation)
	r.Get("/audits/{auditID}/observations", h.handleListObservations)
}

type createAuditRequest struct {
	AgencyID          string    `json:"agency_id"`
	FirmID            string    `json:"firm_id"`
	AuditorName       string    `json:"auditor_name"`
	AuditorEmployeeID string    `json:"auditor_employee_id"`
	AuditDate         time.Time `json:"audit_date"`
}

func (h *AuditHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[createAuditRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), p, audit.CreateParams{
		AgencyID:          req.AgencyID,
		FirmID:            req.FirmID,
		AuditorName:       req.AuditorName,
		AuditorEmployeeID: req.AuditorEmployeeID,
		AuditDate:         req.AuditDate,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *AuditHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, auditID, ok := principalAndID(w, r, "auditID")
	if !ok {
		return
	}
	found, err := h.service.Get(r.Context(), p, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *AuditHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	p, auditID, ok := principalAndID(w, r, "auditID")
	if !ok {
		return
	}
	completed, err := h.service.Complete(r.Context(), p, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, completed)
}

type recordObservationRequest struct {
	Number      int    `json:"number"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

func (h *AuditHandler) handleRecordObservation(w http.ResponseWriter, r *http.Request) {
	p, auditID, ok := principalAndID(w, r, "auditID")
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[recordObservationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	obs, err := h.service.RecordObservation(r.Context(), p, audit.ObservationParams{
		AuditID:     auditID,
		Number:      req.Number,
		Category:    req.Category,
		Severity:    models.Severity(req.Severity),
		Description: req.Description,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, obs)
}

func (h *AuditHandler) handleListObservations(w http.ResponseWriter, r *http.Request) {
	p, auditID, ok := principalAndID(w, r, "auditID")
	if !ok {
		return
	}
	observations, err := h.service.ListObservations(r.Context(), p, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, observations)
}

// principal pulls the authenticated principal, writing the error response
// when it is missing.
func principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := requestcontext.Principal(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "authentication required"))
		return identity.Principal{}, false
	}
	return p, true
}

// principalAndID pulls the principal and a UUID path parameter, writing the
// error response on failure.
func principalAndID(w http.ResponseWriter, r *http.Request, param string) (identity.Principal, uuid.UUID, bool) {
	p, ok := requestcontext.Principal(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "authentication required"))
		return identity.Principal{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid %s", param))
		return identity.Principal{}, uuid.Nil, false
	}
	return p, id, true
}
