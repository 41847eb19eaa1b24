package handler

import (
	"net/http"
	"strconv"

	"civicflow/lifecycle"
	"civicflow/models"
	"civicflow/service"

	"go.uber.org/zap"
)

// EscalationHandler handles HTTP requests for escalation operations
type EscalationHandler struct {
	escalationService *service.EscalationService
	reads             complaintReader
	logger            *zap.Logger
}

// NewEscalationHandler creates a new escalation handler
func NewEscalationHandler(escalationService *service.EscalationService, reads *service.LifecycleService, logger *zap.Logger) *EscalationHandler {
	return &EscalationHandler{
		escalationService: escalationService,
		reads:             reads,
		logger:            logger,
	}
}

// requireOversight admits the roles that watch SLA breaches across departments.
func requireOversight(actor models.ActorContext) error {
	switch actor.Role {
	case models.RoleDeptHead, models.RoleAdmin, models.RoleMunicipalCommissioner, models.RoleSuperAdmin, models.RoleSystem:
		return nil
	}
	return &lifecycle.ForbiddenError{Role: actor.Role, Rule: "escalation data is restricted to reviewers"}
}

// TriggerSweep handles POST /api/v1/escalations/trigger.
// Runs one sweep synchronously; the background worker keeps its own schedule.
func (h *EscalationHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.escalationService.RunSweep(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// Overdue handles GET /api/v1/escalations/overdue?limit=N
func (h *EscalationHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireOversight(actor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, h.logger, &lifecycle.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
	}
	overdue, err := h.escalationService.Overdue(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(overdue),
		"complaints": overdue,
	})
}

// Stats handles GET /api/v1/escalations/stats
func (h *EscalationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireOversight(actor); err != nil {
		writeError(w, h.logger, err)
		return
	}
	stats, err := h.escalationService.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// Policy handles GET /api/v1/escalations/policy
func (h *EscalationHandler) Policy(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.escalationService.Policy())
}

// History handles GET /api/v1/complaints/{id}/escalations
func (h *EscalationHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := readableID(r, h.reads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	events, err := h.escalationService.History(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []models.EscalationEvent{}
	}
	respondWithJSON(w, http.StatusOK, events)
}
