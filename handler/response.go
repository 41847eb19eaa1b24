package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"civicflow/lifecycle"
	"civicflow/middleware"
	"civicflow/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	respondWithJSON(w, statusCode, models.ErrorResponse{
		Error:   errorType,
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps a lifecycle error to its HTTP status.
func statusFor(err error) (int, string) {
	var (
		invalid    *lifecycle.InvalidStateTransitionError
		unauth     *lifecycle.UnauthorizedStateTransitionError
		owner      *lifecycle.ComplaintOwnershipError
		dept       *lifecycle.DepartmentMismatchError
		proof      *lifecycle.ResolutionProofRequiredError
		signoff    *lifecycle.SignoffRequiredError
		duplicate  *lifecycle.DuplicateDisputeError
		dispute    *lifecycle.InvalidDisputeStateError
		notFound   *lifecycle.ResourceNotFoundError
		validation *lifecycle.ValidationError
		forbidden  *lifecycle.ForbiddenError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "Validation error"
	case errors.As(err, &unauth), errors.As(err, &owner), errors.As(err, &dept), errors.As(err, &forbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.As(err, &notFound):
		return http.StatusNotFound, "Not found"
	case errors.As(err, &duplicate), errors.As(err, &dispute), errors.Is(err, lifecycle.ErrConcurrentModification):
		return http.StatusConflict, "Conflict"
	case errors.As(err, &invalid), errors.As(err, &proof), errors.As(err, &signoff):
		return http.StatusUnprocessableEntity, "Transition rejected"
	}
	return http.StatusInternalServerError, "Internal error"
}

// writeError renders err as {error, message, code, rule}. Unknown errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code, kind := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		respondWithError(w, code, kind, "An unexpected error occurred")
		return
	}
	respondWithJSON(w, code, models.ErrorResponse{
		Error:   kind,
		Message: err.Error(),
		Code:    code,
		Rule:    lifecycle.Rule(err),
	})
}

// decodeJSON parses the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &lifecycle.ValidationError{Field: "body", Message: fmt.Sprintf("failed to parse request body: %v", err)}
	}
	return nil
}

// pathID reads a positive integer path variable.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &lifecycle.ValidationError{Field: name, Message: fmt.Sprintf("invalid id %q", raw)}
	}
	return id, nil
}

// actorFrom returns the authenticated actor. Routes are always wrapped by an auth
// middleware, so a missing actor is a wiring bug.
func actorFrom(r *http.Request) (models.ActorContext, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return models.ActorContext{}, errors.New("no actor in request context")
	}
	return actor, nil
}

func optionalReason(reason *string) string {
	if reason == nil {
		return ""
	}
	return *reason
}

// complaintReader gates per-complaint reads on ownership.
type complaintReader interface {
	AuthorizeRead(ctx context.Context, complaintID int64, actor models.ActorContext) (*models.Complaint, error)
}

// readableID returns the {id} path variable once the caller may read that complaint.
func readableID(r *http.Request, reader complaintReader) (int64, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, err
	}
	actor, err := actorFrom(r)
	if err != nil {
		return 0, err
	}
	if _, err := reader.AuthorizeRead(r.Context(), id, actor); err != nil {
		return 0, err
	}
	return id, nil
}
