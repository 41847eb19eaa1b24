package lifecycle

import (
	"context"
	"fmt"
	"time"

	"civicflow/models"
)

// GuardGates answers the evidentiary preconditions of a transition.
type GuardGates interface {
	// HasProof reports whether at least one resolution proof exists, verified or not.
	HasProof(ctx context.Context, complaintID int64) (bool, error)
	// HasAcceptedSignoff reports whether the citizen has accepted the resolution.
	HasAcceptedSignoff(ctx context.Context, complaintID int64) (bool, error)
}

// ValidationResult is returned by a successful ValidateAndAuthorize.
type ValidationResult struct {
	ComplaintID int64
	From        models.ComplaintStatus
	To          models.ComplaintStatus
	Actor       models.ActorContext
	ValidatedAt time.Time
}

// Validator composes the state graph, the role policy, the ownership/department
// context checks and the guards. It performs no writes.
type Validator struct {
	guards GuardGates
	now    func() time.Time
}

// NewValidator creates a validator backed by guards.
func NewValidator(guards GuardGates) *Validator {
	return &Validator{guards: guards, now: func() time.Time { return time.Now().UTC() }}
}

// ValidateAndAuthorize runs, in order and stopping at the first failure:
//  1. state graph validity
//  2. role policy
//  3. ownership / department context
//  4. proof and signoff guards
func (v *Validator) ValidateAndAuthorize(
	ctx context.Context,
	complaintID int64,
	from, to models.ComplaintStatus,
	actor models.ActorContext,
	ownerID int64,
	deptID *int64,
) (*ValidationResult, error) {
	if !IsValidTransition(from, to) {
		return nil, &InvalidStateTransitionError{
			ComplaintID: complaintID,
			From:        from,
			To:          to,
			Reason:      InvalidReason(from, to),
		}
	}

	if !IsRoleAllowed(from, to, actor.Role) {
		return nil, &UnauthorizedStateTransitionError{
			ComplaintID: complaintID,
			From:        from,
			To:          to,
			Role:        actor.Role,
			Allowed:     AllowedRoles(from, to),
		}
	}

	if err := checkContext(complaintID, to, actor, ownerID, deptID); err != nil {
		return nil, err
	}

	if err := v.checkGuards(ctx, complaintID, from, to, actor); err != nil {
		return nil, err
	}

	return &ValidationResult{
		ComplaintID: complaintID,
		From:        from,
		To:          to,
		Actor:       actor,
		ValidatedAt: v.now(),
	}, nil
}

// AvailableTransitions lists the targets actor could request from from. It applies
// the role policy and the context checks only; guards are evaluated at request time.
func (v *Validator) AvailableTransitions(
	from models.ComplaintStatus,
	actor models.ActorContext,
	ownerID int64,
	deptID *int64,
) []models.ComplaintStatus {
	out := []models.ComplaintStatus{}
	for _, to := range AllowedTransitionsForRole(from, actor.Role) {
		if checkContext(0, to, actor, ownerID, deptID) != nil {
			continue
		}
		out = append(out, to)
	}
	return out
}

func checkContext(complaintID int64, to models.ComplaintStatus, actor models.ActorContext, ownerID int64, deptID *int64) error {
	if RequiresOwnershipCheck(to, actor.Role) && actor.UserID != ownerID {
		return &ComplaintOwnershipError{ComplaintID: complaintID, UserID: actor.UserID}
	}
	if RequiresDepartmentCheck(to, actor.Role) && !SameDepartment(actor.DepartmentID, deptID) {
		return &DepartmentMismatchError{
			ComplaintID:         complaintID,
			ActorDepartment:     actor.DepartmentID,
			ComplaintDepartment: deptID,
		}
	}
	return nil
}

func (v *Validator) checkGuards(ctx context.Context, complaintID int64, from, to models.ComplaintStatus, actor models.ActorContext) error {
	switch {
	case from == models.StatusInProgress && to == models.StatusResolved:
		ok, err := v.guards.HasProof(ctx, complaintID)
		if err != nil {
			return fmt.Errorf("failed to check resolution proof: %w", err)
		}
		if !ok {
			return &ResolutionProofRequiredError{ComplaintID: complaintID}
		}
	case from == models.StatusResolved && to == models.StatusClosed && actor.Role != models.RoleSystem:
		ok, err := v.guards.HasAcceptedSignoff(ctx, complaintID)
		if err != nil {
			return fmt.Errorf("failed to check citizen signoff: %w", err)
		}
		if !ok {
			return &SignoffRequiredError{ComplaintID: complaintID}
		}
	}
	return nil
}

// SameDepartment reports whether both departments are set and equal.
func SameDepartment(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}
