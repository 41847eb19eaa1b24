package handler

import (
	"net/http"
	"strconv"

	"civicflow/lifecycle"
	"civicflow/models"
	"civicflow/service"

	"go.uber.org/zap"
)

// DisputeHandler handles citizen disputes and their review
type DisputeHandler struct {
	disputes *service.DisputeService
	logger   *zap.Logger
}

// NewDisputeHandler creates a new dispute handler
func NewDisputeHandler(disputes *service.DisputeService, logger *zap.Logger) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, logger: logger}
}

// SubmitDispute handles POST /api/v1/complaints/{id}/dispute
func (h *DisputeHandler) SubmitDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req models.SubmitDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	signoff, err := h.disputes.SubmitDispute(r.Context(), id, actor, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, signoff)
}

// ApproveDispute handles POST /api/v1/complaints/{id}/dispute/{signoffId}/approve
func (h *DisputeHandler) ApproveDispute(w http.ResponseWriter, r *http.Request) {
	id, signoffID, actor, ok := h.reviewParams(w, r)
	if !ok {
		return
	}
	resp, err := h.disputes.ApproveDispute(r.Context(), id, signoffID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// RejectDispute handles POST /api/v1/complaints/{id}/dispute/{signoffId}/reject
func (h *DisputeHandler) RejectDispute(w http.ResponseWriter, r *http.Request) {
	id, signoffID, actor, ok := h.reviewParams(w, r)
	if !ok {
		return
	}
	var req models.RejectDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp, err := h.disputes.RejectDispute(r.Context(), id, signoffID, req.RejectionReason, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *DisputeHandler) reviewParams(w http.ResponseWriter, r *http.Request) (int64, int64, models.ActorContext, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return 0, 0, models.ActorContext{}, false
	}
	signoffID, err := pathID(r, "signoffId")
	if err != nil {
		writeError(w, h.logger, err)
		return 0, 0, models.ActorContext{}, false
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.logger, err)
		return 0, 0, models.ActorContext{}, false
	}
	return id, signoffID, actor, true
}

// PendingDisputes handles GET /api/v1/disputes/pending?department={id}
func (h *DisputeHandler) PendingDisputes(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var department *int64
	if raw := r.URL.Query().Get("department"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, h.logger, &lifecycle.ValidationError{Field: "department", Message: "must be a positive integer"})
			return
		}
		department = &id
	}
	disputes, err := h.disputes.PendingDisputes(r.Context(), actor, department)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if disputes == nil {
		disputes = []models.PendingDispute{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(disputes),
		"disputes": disputes,
	})
}
