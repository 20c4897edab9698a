package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vigil/internal/approval"
	"vigil/pkg/httputil"
)

// ApprovalHandler wires dual-control approval endpoints.
type ApprovalHandler struct {
	service *approval.Service
}

func NewApprovalHandler(service *approval.Service) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Register mounts approval endpoints on the router.
func (h *ApprovalHandler) Register(r chi.Router) {
	r.Post("/approvals", h.handleBegin)
	r.Post("/approvals/{sessionID}/confirm", h.handleConfirm)
	r.Get("/approvals/{sessionID}", h.handleGet)
}

type beginApprovalRequest struct {
	Action string `json:"action"`
}

func (h *ApprovalHandler) handleBegin(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeJSON[beginApprovalRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, err := h.service.Begin(r.Context(), p, req.Action)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

func (h *ApprovalHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	p, sessionID, ok := principalAndID(w, r, "sessionID")
	if !ok {
		return
	}
	session, err := h.service.Confirm(r.Context(), p, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *ApprovalHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := principalAndID(w, r, "sessionID")
	if !ok {
		return
	}
	active, err := h.service.Active(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"active": active})
}
