package lifecycle

import (
	"context"
	"errors"
	"testing"

	"civicflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGuards struct {
	proof   bool
	signoff bool
	err     error
}

func (g stubGuards) HasProof(context.Context, int64) (bool, error) {
	return g.proof, g.err
}

func (g stubGuards) HasAcceptedSignoff(context.Context, int64) (bool, error) {
	return g.signoff, g.err
}

func dept(id int64) *int64 { return &id }

func TestIsRoleAllowed_Matrix(t *testing.T) {
	roles := []models.Role{
		models.RoleCitizen, models.RoleStaff, models.RoleDeptHead, models.RoleAdmin,
		models.RoleMunicipalCommissioner, models.RoleSuperAdmin, models.RoleSystem,
	}
	want := map[Edge][]models.Role{
		{models.StatusFiled, models.StatusInProgress}:     {models.RoleSystem},
		{models.StatusInProgress, models.StatusResolved}:  {models.RoleStaff, models.RoleDeptHead},
		{models.StatusResolved, models.StatusClosed}:      {models.RoleCitizen, models.RoleSystem},
		{models.StatusFiled, models.StatusCancelled}:      {models.RoleCitizen, models.RoleAdmin},
		{models.StatusInProgress, models.StatusCancelled}: {models.RoleCitizen, models.RoleAdmin},
		{models.StatusHold, models.StatusCancelled}:       {models.RoleCitizen, models.RoleAdmin},
		{models.StatusInProgress, models.StatusHold}:      {models.RoleStaff, models.RoleDeptHead},
		{models.StatusHold, models.StatusInProgress}:      {models.RoleStaff, models.RoleDeptHead},
	}
	for edge, allowed := range want {
		for _, role := range roles {
			expected := false
			for _, r := range allowed {
				if r == role {
					expected = true
				}
			}
			assert.Equal(t, expected, IsRoleAllowed(edge.From, edge.To, role), "%s by %s", edge, role)
		}
	}
	// SUPER_ADMIN gets no implicit bypass
	assert.False(t, IsRoleAllowed(models.StatusFiled, models.StatusInProgress, models.RoleSuperAdmin))
	assert.Nil(t, AllowedRoles(models.StatusClosed, models.StatusFiled))
}

func TestDenialReason(t *testing.T) {
	assert.Empty(t, DenialReason(models.StatusFiled, models.StatusInProgress, models.RoleSystem))
	assert.Equal(t, "only SYSTEM can move a complaint from FILED to IN_PROGRESS",
		DenialReason(models.StatusFiled, models.StatusInProgress, models.RoleStaff))
	assert.Contains(t, DenialReason(models.StatusResolved, models.StatusClosed, models.RoleStaff), "CITIZEN or SYSTEM")
}

func TestValidateAndAuthorize(t *testing.T) {
	ctx := context.Background()
	const owner = 5
	citizen := models.ActorContext{UserID: owner, Role: models.RoleCitizen}
	stranger := models.ActorContext{UserID: 6, Role: models.RoleCitizen}
	staff := models.ActorContext{UserID: 20, Role: models.RoleStaff, DepartmentID: dept(3)}
	otherStaff := models.ActorContext{UserID: 21, Role: models.RoleStaff, DepartmentID: dept(4)}
	admin := models.ActorContext{UserID: 30, Role: models.RoleAdmin}

	tests := []struct {
		name    string
		guards  stubGuards
		from    models.ComplaintStatus
		to      models.ComplaintStatus
		actor   models.ActorContext
		deptID  *int64
		wantErr any
	}{
		{"system starts", stubGuards{}, models.StatusFiled, models.StatusInProgress, models.SystemActor(), dept(3), nil},
		{"staff cannot start", stubGuards{}, models.StatusFiled, models.StatusInProgress, staff, dept(3), &UnauthorizedStateTransitionError{}},
		{"graph checked before role", stubGuards{}, models.StatusClosed, models.StatusInProgress, citizen, dept(3), &InvalidStateTransitionError{}},
		{"resolve needs proof", stubGuards{}, models.StatusInProgress, models.StatusResolved, staff, dept(3), &ResolutionProofRequiredError{}},
		{"resolve with proof", stubGuards{proof: true}, models.StatusInProgress, models.StatusResolved, staff, dept(3), nil},
		{"resolve other department", stubGuards{proof: true}, models.StatusInProgress, models.StatusResolved, otherStaff, dept(3), &DepartmentMismatchError{}},
		{"resolve unassigned department", stubGuards{proof: true}, models.StatusInProgress, models.StatusResolved, staff, nil, &DepartmentMismatchError{}},
		{"citizen close needs signoff", stubGuards{}, models.StatusResolved, models.StatusClosed, citizen, dept(3), &SignoffRequiredError{}},
		{"citizen close with signoff", stubGuards{signoff: true}, models.StatusResolved, models.StatusClosed, citizen, dept(3), nil},
		{"system close bypasses signoff", stubGuards{}, models.StatusResolved, models.StatusClosed, models.SystemActor(), dept(3), nil},
		{"stranger cannot close", stubGuards{signoff: true}, models.StatusResolved, models.StatusClosed, stranger, dept(3), &ComplaintOwnershipError{}},
		{"stranger cannot cancel", stubGuards{}, models.StatusFiled, models.StatusCancelled, stranger, dept(3), &ComplaintOwnershipError{}},
		{"admin cancels any", stubGuards{}, models.StatusHold, models.StatusCancelled, admin, nil, nil},
		{"staff holds", stubGuards{}, models.StatusInProgress, models.StatusHold, staff, dept(3), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.guards)
			res, err := v.ValidateAndAuthorize(ctx, 1, tt.from, tt.to, tt.actor, owner, tt.deptID)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.from, res.From)
				assert.Equal(t, tt.to, res.To)
				assert.False(t, res.ValidatedAt.IsZero())
				return
			}
			require.Error(t, err)
			assert.Nil(t, res)
			assert.IsType(t, tt.wantErr, err)
		})
	}
}

func TestValidateAndAuthorize_GuardError(t *testing.T) {
	boom := errors.New("db down")
	v := NewValidator(stubGuards{err: boom})
	staff := models.ActorContext{UserID: 20, Role: models.RoleStaff, DepartmentID: dept(3)}

	_, err := v.ValidateAndAuthorize(context.Background(), 1, models.StatusInProgress, models.StatusResolved, staff, 5, dept(3))
	require.ErrorIs(t, err, boom)
	assert.Empty(t, Rule(err))
}

func TestAvailableTransitions(t *testing.T) {
	v := NewValidator(stubGuards{})

	citizen := models.ActorContext{UserID: 5, Role: models.RoleCitizen}
	assert.Equal(t, []models.ComplaintStatus{models.StatusCancelled},
		v.AvailableTransitions(models.StatusInProgress, citizen, 5, dept(3)))
	assert.Empty(t, v.AvailableTransitions(models.StatusInProgress, citizen, 9, dept(3)))

	staff := models.ActorContext{UserID: 20, Role: models.RoleStaff, DepartmentID: dept(3)}
	assert.Equal(t, []models.ComplaintStatus{models.StatusHold, models.StatusResolved},
		v.AvailableTransitions(models.StatusInProgress, staff, 5, dept(3)))

	assert.Empty(t, v.AvailableTransitions(models.StatusClosed, models.SystemActor(), 5, dept(3)))
}

func TestRule(t *testing.T) {
	tests := map[string]error{
		"state_graph":               &InvalidStateTransitionError{},
		"transition_policy":         &UnauthorizedStateTransitionError{},
		"complaint_ownership":       &ComplaintOwnershipError{},
		"department_match":          &DepartmentMismatchError{},
		"resolution_proof_required": &ResolutionProofRequiredError{},
		"signoff_required":          &SignoffRequiredError{},
		"single_pending_dispute":    &DuplicateDisputeError{},
		"dispute_state":             &InvalidDisputeStateError{},
		"not_found":                 NotFound("complaint", 1),
		"optimistic_lock":           ErrConcurrentModification,
	}
	for want, err := range tests {
		assert.Equal(t, want, Rule(err))
	}
}
