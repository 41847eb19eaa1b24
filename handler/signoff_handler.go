package handler

import (
	"net/http"

	"civicflow/models"
	"civicflow/service"

	"go.uber.org/zap"
)

// SignoffHandler handles citizen signoff endpoints
type SignoffHandler struct {
	signoffs *service.SignoffService
	reads    complaintReader
	logger   *zap.Logger
}

// NewSignoffHandler creates a new signoff handler
func NewSignoffHandler(signoffs *service.SignoffService, reads *service.LifecycleService, logger *zap.Logger) *SignoffHandler {
	return &SignoffHandler{signoffs: signoffs, reads: reads, logger: logger}
}

// SubmitSignoff handles POST /api/v1/complaints/{id}/signoff
func (h *SignoffHandler) SubmitSignoff(w http.ResponseWriter, r *http.Request) {
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
	var req models.SubmitSignoffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp, err := h.signoffs.SubmitSignoff(r.Context(), id, actor, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

// ListSignoffs handles GET /api/v1/complaints/{id}/signoffs
func (h *SignoffHandler) ListSignoffs(w http.ResponseWriter, r *http.Request) {
	id, err := readableID(r, h.reads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	signoffs, err := h.signoffs.ListSignoffs(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if signoffs == nil {
		signoffs = []models.CitizenSignoff{}
	}
	respondWithJSON(w, http.StatusOK, signoffs)
}

// HasSignoff handles GET /api/v1/complaints/{id}/has-signoff
func (h *SignoffHandler) HasSignoff(w http.ResponseWriter, r *http.Request) {
	id, err := readableID(r, h.reads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	exists, err := h.signoffs.HasAcceptedSignoff(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.ExistsResponse{ComplaintID: id, Exists: exists})
}
