package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/workflow/models"
	"vigil/internal/workflow/notice"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/httputil"
)

// NoticeHandler wires show-cause notice endpoints to the notice service.
type NoticeHandler struct {
	service *notice.Service
}

func NewNoticeHandler(service *notice.Service) *NoticeHandler {
	return &NoticeHandler{service: service}
}

// Register mounts notice endpoints on the router.
func (h *NoticeHandler) Register(r chi.Router) {
	r.Post("/notices", h.handleIssue)
	r.Post("/notices/bulk", h.handleIssueBulk)
	r.Get("/notices/{noticeID}", h.handleGet)
	r.Post("/notices/{noticeID}/responses", h.handleSubmitResponse)
	r.Post("/notices/{noticeID}/observations/{observationID}/resolve", h.handleResolveObservation)
	r.Post("/notices/{noticeID}/close", h.handleClose)
}

type issueNoticeRequest struct {
	AgencyID       string      `json:"agency_id"`
	ObservationIDs []uuid.UUID `json:"observation_ids"`
	Subject        string      `json:"subject"`
	Details        string      `json:"details"`
	ResponseDue    time.Time   `json:"response_due"`
}

func (h *NoticeHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[issueNoticeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	issued, err := h.service.Issue(r.Context(), p, notice.IssueParams{
		AgencyID:       req.AgencyID,
		ObservationIDs: req.ObservationIDs,
		Subject:        req.Subject,
		Details:        req.Details,
		ResponseDue:    req.ResponseDue,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issued)
}

type bulkIssueRequest struct {
	Subject     string    `json:"subject"`
	Details     string    `json:"details"`
	ResponseDue time.Time `json:"response_due"`
	Items       []struct {
		AgencyID       string      `json:"agency_id"`
		ObservationIDs []uuid.UUID `json:"observation_ids"`
		Subject        string      `json:"subject,omitempty"`
		Details        string      `json:"details,omitempty"`
	} `json:"items"`
}

func (h *NoticeHandler) handleIssueBulk(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[bulkIssueRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	items := make([]notice.BulkItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, notice.BulkItem{
			AgencyID:       item.AgencyID,
			ObservationIDs: item.ObservationIDs,
			Subject:        item.Subject,
			Details:        item.Details,
		})
	}
	results, err := h.service.IssueBulk(r.Context(), p, notice.BulkParams{
		Items:       items,
		Subject:     req.Subject,
		Details:     req.Details,
		ResponseDue: req.ResponseDue,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// 207: per-item outcomes, some of which may be failures.
	httputil.WriteJSON(w, http.StatusMultiStatus, results)
}

func (h *NoticeHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, noticeID, ok := principalAndID(w, r, "noticeID")
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), p, noticeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

type submitResponseRequest struct {
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

func (h *NoticeHandler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	p, noticeID, ok := principalAndID(w, r, "noticeID")
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[submitResponseRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp, err := h.service.SubmitResponse(r.Context(), p, noticeID, req.Content, req.AttachmentIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

type resolveObservationRequest struct {
	Outcome string `json:"outcome"`
}

func (h *NoticeHandler) handleResolveObservation(w http.ResponseWriter, r *http.Request) {
	p, noticeID, ok := principalAndID(w, r, "noticeID")
	if !ok {
		return
	}
	observationID, err := uuid.Parse(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid observationID"))
		return
	}
	req, err := httputil.DecodeJSON[resolveObservationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome := models.ObservationStatus(req.Outcome)
	if err := h.service.ResolveObservation(r.Context(), p, noticeID, observationID, outcome); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NoticeHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	p, noticeID, ok := principalAndID(w, r, "noticeID")
	if !ok {
		return
	}
	if err := h.service.Close(r.Context(), p, noticeID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
