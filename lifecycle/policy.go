package lifecycle

import (
	"fmt"
	"slices"
	"strings"

	"civicflow/models"
)

var (
	systemOnly = []models.Role{models.RoleSystem}
	fieldStaff = []models.Role{models.RoleStaff, models.RoleDeptHead}
	closers    = []models.Role{models.RoleCitizen, models.RoleSystem}
	cancellers = []models.Role{models.RoleCitizen, models.RoleAdmin}
)

// transitionPolicy maps every state-graph edge to the roles allowed to take it.
var transitionPolicy = map[Edge][]models.Role{
	{models.StatusFiled, models.StatusInProgress}:     systemOnly,
	{models.StatusInProgress, models.StatusResolved}:  fieldStaff,
	{models.StatusResolved, models.StatusClosed}:      closers,
	{models.StatusFiled, models.StatusCancelled}:      cancellers,
	{models.StatusInProgress, models.StatusCancelled}: cancellers,
	{models.StatusHold, models.StatusCancelled}:       cancellers,
	{models.StatusInProgress, models.StatusHold}:      fieldStaff,
	{models.StatusHold, models.StatusInProgress}:      fieldStaff,
}

// AllowedRoles returns the roles that may take from→to; nil for edges outside the graph.
func AllowedRoles(from, to models.ComplaintStatus) []models.Role {
	roles, ok := transitionPolicy[Edge{from, to}]
	if !ok {
		return nil
	}
	return slices.Clone(roles)
}

// IsRoleAllowed reports whether role may take from→to.
func IsRoleAllowed(from, to models.ComplaintStatus, role models.Role) bool {
	return slices.Contains(transitionPolicy[Edge{from, to}], role)
}

// AllowedTransitionsForRole lists the targets role may move a complaint to from from.
func AllowedTransitionsForRole(from models.ComplaintStatus, role models.Role) []models.ComplaintStatus {
	var out []models.ComplaintStatus
	for _, to := range NextStates(from) {
		if IsRoleAllowed(from, to, role) {
			out = append(out, to)
		}
	}
	return out
}

// RequiresOwnershipCheck is true when a citizen closes or cancels: it must be their complaint.
func RequiresOwnershipCheck(to models.ComplaintStatus, role models.Role) bool {
	return role == models.RoleCitizen &&
		(to == models.StatusClosed || to == models.StatusCancelled)
}

// RequiresDepartmentCheck is true when field staff act on a complaint: it must be in their department.
func RequiresDepartmentCheck(to models.ComplaintStatus, role models.Role) bool {
	if role != models.RoleStaff && role != models.RoleDeptHead {
		return false
	}
	return to == models.StatusResolved || to == models.StatusHold || to == models.StatusInProgress
}

// DenialReason explains an RBAC denial; empty when role is allowed.
func DenialReason(from, to models.ComplaintStatus, role models.Role) string {
	roles, ok := transitionPolicy[Edge{from, to}]
	if !ok {
		return fmt.Sprintf("no transition from %s to %s exists", from, to)
	}
	if slices.Contains(roles, role) {
		return ""
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	if len(names) == 1 {
		return fmt.Sprintf("only %s can move a complaint from %s to %s", names[0], from, to)
	}
	return fmt.Sprintf("only %s can move a complaint from %s to %s", strings.Join(names, " or "), from, to)
}
