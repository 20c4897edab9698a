package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vigil/internal/workflow/models"
	"vigil/internal/workflow/penalty"
	"vigil/pkg/httputil"
)

// PenaltyHandler wires penalty and scorecard endpoints to the finalizer
// service.
type PenaltyHandler struct {
	service *penalty.Service
}

func NewPenaltyHandler(service *penalty.Service) *PenaltyHandler {
	return &PenaltyHandler{service: service}
}

// Register mounts penalty and scorecard endpoints on the router.
func (h *PenaltyHandler) Register(r chi.Router) {
	r.Put("/observations/{observationID}/penalty", h.handleAssignPenalty)
	r.Get("/observations/{observationID}/penalty", h.handleGetPenalty)
	r.Put("/audits/{auditID}/scorecard", h.handlePublishScorecard)
	r.Get("/audits/{auditID}/scorecard", h.handleGetScorecard)
}

type assignPenaltyRequest struct {
	AmountMinor    int64  `json:"amount_minor"`
	Reason         string `json:"reason"`
	DeductionMonth string `json:"deduction_month"`
	Status         string `json:"status,omitempty"`
}

func (h *PenaltyHandler) handleAssignPenalty(w http.ResponseWriter, r *http.Request) {
	p, observationID, ok := principalAndID(w, r, "observationID")
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[assignPenaltyRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	assigned, err := h.service.AssignPenalty(r.Context(), p, penalty.PenaltyParams{
		ObservationID:  observationID,
		AmountMinor:    req.AmountMinor,
		Reason:         req.Reason,
		DeductionMonth: req.DeductionMonth,
		Status:         models.PenaltyStatus(req.Status),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, assigned)
}

func (h *PenaltyHandler) handleGetPenalty(w http.ResponseWriter, r *http.Request) {
	p, observationID, ok := principalAndID(w, r, "observationID")
	if !ok {
		return
	}
	found, err := h.service.GetPenalty(r.Context(), p, observationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

type publishScorecardRequest struct {
	AuditPeriod      string  `json:"audit_period"`
	AuditScore       float64 `json:"audit_score"`
	AuditGrade       string  `json:"audit_grade"`
	AuditCategory    string  `json:"audit_category"`
	FinalObservation string  `json:"final_observation"`
	Justification    string  `json:"justification"`
}

func (h *PenaltyHandler) handlePublishScorecard(w http.ResponseWriter, r *http.Request) {
	p, auditID, ok := principalAndID(w, r, "auditID")
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[publishScorecardRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	card, err := h.service.PublishScorecard(r.Context(), p, penalty.ScorecardParams{
		AuditID:          auditID,
		AuditPeriod:      req.AuditPeriod,
		AuditScore:       req.AuditScore,
		AuditGrade:       req.AuditGrade,
		AuditCategory:    req.AuditCategory,
		FinalObservation: req.FinalObservation,
		Justification:    req.Justification,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, card)
}

func (h *PenaltyHandler) handleGetScorecard(w http.ResponseWriter, r *http.Request) {
	p, auditID, ok := principalAndID(w, r, "auditID")
	if !ok {
		return
	}
	card, err := h.service.GetScorecard(r.Context(), p, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, card)
}
