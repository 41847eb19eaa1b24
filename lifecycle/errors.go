package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"civicflow/models"
)

// ErrConcurrentModification is returned when a complaint changed between load and write.
var ErrConcurrentModification = errors.New("complaint was modified concurrently, reload and retry")

// InvalidStateTransitionError is a StateGraph violation.
type InvalidStateTransitionError struct {
	ComplaintID int64
	From        models.ComplaintStatus
	To          models.ComplaintStatus
	Reason      string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for complaint %d: %s", e.ComplaintID, e.Reason)
}

// UnauthorizedStateTransitionError is an RBAC denial. Allowed lists the roles that could perform it.
type UnauthorizedStateTransitionError struct {
	ComplaintID int64
	From        models.ComplaintStatus
	To          models.ComplaintStatus
	Role        models.Role
	Allowed     []models.Role
}

func (e *UnauthorizedStateTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, r := range e.Allowed {
		allowed[i] = string(r)
	}
	return fmt.Sprintf("role %s may not move complaint %d from %s to %s (allowed: %s)",
		e.Role, e.ComplaintID, e.From, e.To, strings.Join(allowed, ", "))
}

// ComplaintOwnershipError means a citizen acted on someone else's complaint.
type ComplaintOwnershipError struct {
	ComplaintID int64
	UserID      int64
}

func (e *ComplaintOwnershipError) Error() string {
	return fmt.Sprintf("user %d does not own complaint %d", e.UserID, e.ComplaintID)
}

// DepartmentMismatchError means staff acted outside the complaint's department.
type DepartmentMismatchError struct {
	ComplaintID         int64
	ActorDepartment     *int64
	ComplaintDepartment *int64
}

func (e *DepartmentMismatchError) Error() string {
	return fmt.Sprintf("actor department %s does not match complaint %d department %s",
		fmtDept(e.ActorDepartment), e.ComplaintID, fmtDept(e.ComplaintDepartment))
}

func fmtDept(id *int64) string {
	if id == nil {
		return "<none>"
	}
	return fmt.Sprintf("%d", *id)
}

// ResolutionProofRequiredError means IN_PROGRESS→RESOLVED was attempted without proof.
type ResolutionProofRequiredError struct {
	ComplaintID int64
}

func (e *ResolutionProofRequiredError) Error() string {
	return fmt.Sprintf("complaint %d cannot be resolved without at least one resolution proof", e.ComplaintID)
}

// SignoffRequiredError means RESOLVED→CLOSED was attempted without citizen acceptance.
type SignoffRequiredError struct {
	ComplaintID int64
}

func (e *SignoffRequiredError) Error() string {
	return fmt.Sprintf("complaint %d cannot be closed before the citizen accepts the resolution", e.ComplaintID)
}

// DuplicateDisputeError means a dispute is already pending for the complaint.
type DuplicateDisputeError struct {
	ComplaintID      int64
	PendingSignoffID int64
}

func (e *DuplicateDisputeError) Error() string {
	return fmt.Sprintf("complaint %d already has a pending dispute (signoff %d)", e.ComplaintID, e.PendingSignoffID)
}

// InvalidDisputeStateError covers disputes filed or reviewed in the wrong state.
type InvalidDisputeStateError struct {
	ComplaintID int64
	SignoffID   int64
	Reason      string
}

func (e *InvalidDisputeStateError) Error() string {
	if e.SignoffID != 0 {
		return fmt.Sprintf("dispute %d on complaint %d: %s", e.SignoffID, e.ComplaintID, e.Reason)
	}
	return fmt.Sprintf("dispute on complaint %d: %s", e.ComplaintID, e.Reason)
}

// ResourceNotFoundError is a missing complaint, signoff or proof.
type ResourceNotFoundError struct {
	Resource string
	ID       int64
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// NotFound builds a ResourceNotFoundError.
func NotFound(resource string, id int64) error {
	return &ResourceNotFoundError{Resource: resource, ID: id}
}

// ValidationError is malformed caller input (missing rating, empty reason, ...).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ForbiddenError is an authorization failure outside the transition policy table,
// e.g. a non DEPT_HEAD reviewing a dispute.
type ForbiddenError struct {
	Role models.Role
	Rule string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s (role %s)", e.Rule, e.Role)
}

// Rule returns a short machine-readable name for the violated rule, or "" for unknown errors.
func Rule(err error) string {
	var (
		invalid    *InvalidStateTransitionError
		unauth     *UnauthorizedStateTransitionError
		owner      *ComplaintOwnershipError
		dept       *DepartmentMismatchError
		proof      *ResolutionProofRequiredError
		signoff    *SignoffRequiredError
		duplicate  *DuplicateDisputeError
		dispute    *InvalidDisputeStateError
		notFound   *ResourceNotFoundError
		validation *ValidationError
		forbidden  *ForbiddenError
	)
	switch {
	case errors.As(err, &invalid):
		return "state_graph"
	case errors.As(err, &unauth):
		return "transition_policy"
	case errors.As(err, &owner):
		return "complaint_ownership"
	case errors.As(err, &dept):
		return "department_match"
	case errors.As(err, &proof):
		return "resolution_proof_required"
	case errors.As(err, &signoff):
		return "signoff_required"
	case errors.As(err, &duplicate):
		return "single_pending_dispute"
	case errors.As(err, &dispute):
		return "dispute_state"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &forbidden):
		return "forbidden"
	case errors.Is(err, ErrConcurrentModification):
		return "optimistic_lock"
	}
	return ""
}
