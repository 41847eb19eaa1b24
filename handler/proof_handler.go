package handler

import (
	"net/http"

	"civicflow/models"
	"civicflow/service"

	"go.uber.org/zap"
)

// ProofHandler handles resolution proof endpoints
type ProofHandler struct {
	proofs *service.ProofService
	reads  complaintReader
	logger *zap.Logger
}

// NewProofHandler creates a new proof handler
func NewProofHandler(proofs *service.ProofService, reads *service.LifecycleService, logger *zap.Logger) *ProofHandler {
	return &ProofHandler{proofs: proofs, reads: reads, logger: logger}
}

// SubmitProof handles POST /api/v1/complaints/{id}/resolution-proof
func (h *ProofHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
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
	var req models.SubmitProofRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	proof, err := h.proofs.SubmitProof(r.Context(), id, actor, req.EvidenceRef)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, proof)
}

// VerifyProof handles PUT /api/v1/complaints/{id}/resolution-proof/{proofId}/verify
func (h *ProofHandler) VerifyProof(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	proofID, err := pathID(r, "proofId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	proof, err := h.proofs.VerifyProof(r.Context(), id, proofID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, proof)
}

// ListProofs handles GET /api/v1/complaints/{id}/resolution-proof
func (h *ProofHandler) ListProofs(w http.ResponseWriter, r *http.Request) {
	id, err := readableID(r, h.reads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	proofs, err := h.proofs.ListProofs(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if proofs == nil {
		proofs = []models.ResolutionProof{}
	}
	respondWithJSON(w, http.StatusOK, proofs)
}

// HasProof handles GET /api/v1/complaints/{id}/has-proof
func (h *ProofHandler) HasProof(w http.ResponseWriter, r *http.Request) {
	id, err := readableID(r, h.reads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	exists, err := h.proofs.HasProof(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.ExistsResponse{ComplaintID: id, Exists: exists})
}
