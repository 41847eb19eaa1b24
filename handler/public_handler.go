package handler

import (
	"net/http"

	"civicflow/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PublicHandler serves read-only public case data. No auth; whitelisted fields only.
type PublicHandler struct {
	lifecycle *service.LifecycleService
	logger    *zap.Logger
}

// NewPublicHandler creates a public handler
func NewPublicHandler(svc *service.LifecycleService, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{lifecycle: svc, logger: logger}
}

// GetPublicComplaintByNumber handles GET /api/v1/public/complaints/by-number/{complaint_number}.
// complaint_id is never exposed.
func (h *PublicHandler) GetPublicComplaintByNumber(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["complaint_number"]
	if number == "" {
		respondWithError(w, http.StatusBadRequest, "Bad Request", "complaint_number required")
		return
	}
	view, err := h.lifecycle.PublicComplaint(r.Context(), number)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if view == nil {
		respondWithError(w, http.StatusNotFound, "Not Found", "Complaint not found")
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}
