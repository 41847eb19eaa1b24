package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"civicflow/lifecycle"
	"civicflow/models"
	"civicflow/service"

	"go.uber.org/zap"
)

type transitionFunc func(ctx context.Context, complaintID int64, actor models.ActorContext, reason string) (*models.TransitionResponse, error)

// LifecycleHandler handles complaint status transitions and reads
type LifecycleHandler struct {
	lifecycle *service.LifecycleService
	logger    *zap.Logger
}

// NewLifecycleHandler creates a new lifecycle handler
func NewLifecycleHandler(svc *service.LifecycleService, logger *zap.Logger) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: svc, logger: logger}
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &lifecycle.ValidationError{Field: "body", Message: "failed to parse request body: " + err.Error()}
}

// TransitionState handles PUT /api/v1/complaints/{id}/state
func (h *LifecycleHandler) TransitionState(w http.ResponseWriter, r *http.Request) {
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
	var req models.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.TargetState = models.ComplaintStatus(strings.ToUpper(strings.TrimSpace(string(req.TargetState))))
	if req.TargetState == "" {
		writeError(w, h.logger, &lifecycle.ValidationError{Field: "target_state", Message: "is required"})
		return
	}

	resp, err := h.lifecycle.TransitionState(r.Context(), id, req.TargetState, actor, optionalReason(req.Reason))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// Shortcut adapts a semantic transition (start, resolve, close, ...) to
// PUT /api/v1/complaints/{id}/{action}. The body is optional: {"reason": "..."}.
func (h *LifecycleHandler) Shortcut(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		var body struct {
			Reason *string `json:"reason"`
		}
		if err := decodeOptionalJSON(r, &body); err != nil {
			writeError(w, h.logger, err)
			return
		}
		resp, err := fn(r.Context(), id, actor, optionalReason(body.Reason))
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, resp)
	}
}

// Start handles PUT /api/v1/complaints/{id}/start
func (h *LifecycleHandler) Start() http.HandlerFunc { return h.Shortcut(h.lifecycle.StartWork) }

// Resolve handles PUT /api/v1/complaints/{id}/resolve
func (h *LifecycleHandler) Resolve() http.HandlerFunc { return h.Shortcut(h.lifecycle.Resolve) }

// Close handles PUT /api/v1/complaints/{id}/close
func (h *LifecycleHandler) Close() http.HandlerFunc { return h.Shortcut(h.lifecycle.Close) }

// Cancel handles PUT /api/v1/complaints/{id}/cancel
func (h *LifecycleHandler) Cancel() http.HandlerFunc { return h.Shortcut(h.lifecycle.Cancel) }

// Hold handles PUT /api/v1/complaints/{id}/hold
func (h *LifecycleHandler) Hold() http.HandlerFunc { return h.Shortcut(h.lifecycle.Hold) }

// Resume handles PUT /api/v1/complaints/{id}/resume
func (h *LifecycleHandler) Resume() http.HandlerFunc { return h.Shortcut(h.lifecycle.Resume) }

// SystemStart handles PUT /api/v1/complaints/{id}/system/start (system token)
func (h *LifecycleHandler) SystemStart(w http.ResponseWriter, r *http.Request) {
	h.system(w, r, h.lifecycle.SystemStart)
}

// SystemClose handles PUT /api/v1/complaints/{id}/system/close (system token)
func (h *LifecycleHandler) SystemClose(w http.ResponseWriter, r *http.Request) {
	h.system(w, r, h.lifecycle.SystemClose)
}

func (h *LifecycleHandler) system(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*models.TransitionResponse, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// AllowedTransitions handles GET /api/v1/complaints/{id}/allowed-transitions
func (h *LifecycleHandler) AllowedTransitions(w http.ResponseWriter, r *http.Request) {
	id, err := readableID(r, h.lifecycle)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp, err := h.lifecycle.AllowedTransitions(r.Context(), id, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetComplaint handles GET /api/v1/complaints/{id}. Citizens see only their own.
func (h *LifecycleHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.lifecycle.AuthorizeRead(r.Context(), id, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// Timeline handles GET /api/v1/complaints/{id}/timeline
func (h *LifecycleHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, err := readableID(r, h.lifecycle)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp, err := h.lifecycle.Timeline(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// FileComplaint handles POST /api/v1/complaints (system token, intake pipeline)
func (h *LifecycleHandler) FileComplaint(w http.ResponseWriter, r *http.Request) {
	var req models.FileComplaintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	switch {
	case req.CitizenID <= 0:
		writeError(w, h.logger, &lifecycle.ValidationError{Field: "citizen_id", Message: "is required"})
		return
	case strings.TrimSpace(req.Title) == "":
		writeError(w, h.logger, &lifecycle.ValidationError{Field: "title", Message: "is required"})
		return
	}
	priority := models.Priority(strings.ToUpper(strings.TrimSpace(string(req.Priority))))
	if priority != "" && !priority.Valid() {
		writeError(w, h.logger, &lifecycle.ValidationError{Field: "priority", Message: "must be LOW, MEDIUM, HIGH or CRITICAL"})
		return
	}

	c := &models.Complaint{
		CitizenID:    req.CitizenID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		CategoryID:   nullInt(req.CategoryID),
		DepartmentID: nullInt(req.DepartmentID),
		StaffID:      nullInt(req.StaffID),
		Priority:     priority,
	}
	if err := h.lifecycle.FileComplaint(r.Context(), c); err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, c)
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
