package service

import (
	"context"
	"testing"
	"time"

	"civicflow/lifecycle"
	"civicflow/memstore"
	"civicflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReopenSLADays(t *testing.T) {
	tests := map[int]int{1: 1, 2: 2, 3: 3, 4: 3, 7: 6, 10: 8, 30: 23}
	for base, want := range tests {
		assert.Equal(t, want, reopenSLADays(base), "base %d", base)
	}
}

func TestSubmitDispute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.resolved(t)

	_, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "  "})
	var verr *lifecycle.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = h.disputes.SubmitDispute(ctx, c.ComplaintID, otherUser, &models.SubmitDisputeRequest{DisputeReason: "not fixed"})
	assert.Equal(t, "complaint_ownership", lifecycle.Rule(err))

	_, err = h.disputes.SubmitDispute(ctx, c.ComplaintID, staff, &models.SubmitDisputeRequest{DisputeReason: "not fixed"})
	assert.Equal(t, "forbidden", lifecycle.Rule(err))

	ref := "s3://citizen/counter.jpg"
	signoff, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{
		DisputeReason:   "the light is still out",
		CounterProofRef: &ref,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DisputePending, signoff.DisputeOutcome)
	assert.Equal(t, ref, signoff.CounterProofRef.String)

	// complaint stays RESOLVED until reviewed
	assert.Equal(t, models.StatusResolved, h.reload(t, c.ComplaintID).Status)

	_, err = h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "again"})
	var dup *lifecycle.DuplicateDisputeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, signoff.SignoffID, dup.PendingSignoffID)

	pending, err := h.disputes.PendingDisputes(ctx, deptHead, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "the light is still out", pending[0].DisputeReason)
}

func TestSubmitDispute_OnlyWhileResolved(t *testing.T) {
	h := newHarness(t)
	c := h.fileComplaint(t)
	_, err := h.disputes.SubmitDispute(context.Background(), c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "x"})
	var stateErr *lifecycle.InvalidDisputeStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestApproveDispute_ReopensComplaint(t *testing.T) {
	store := memstore.New()
	store.SetCategorySLA(9, 10)
	h := newHarnessWithStores(t, store, nil)
	ctx := context.Background()

	c := &models.Complaint{
		CitizenID:    citizen.UserID,
		Title:        "Overflowing drain",
		CategoryID:   nullInt(9),
		DepartmentID: nullInt(3),
		Priority:     models.PriorityHigh,
	}
	require.NoError(t, h.lifecycle.FileComplaint(ctx, c))
	_, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)
	// the sweep escalated it while work was under way
	advanced, err := store.AdvanceEscalationLevel(ctx, c.ComplaintID, 2, testNow.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.True(t, advanced)
	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/a.jpg")
	require.NoError(t, err)
	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/b.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "")
	require.NoError(t, err)
	require.Equal(t, 2, h.reload(t, c.ComplaintID).EscalationLevel)

	signoff, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "still blocked"})
	require.NoError(t, err)

	_, err = h.disputes.ApproveDispute(ctx, c.ComplaintID, signoff.SignoffID, staff)
	assert.Equal(t, "forbidden", lifecycle.Rule(err))
	_, err = h.disputes.ApproveDispute(ctx, c.ComplaintID, signoff.SignoffID, otherHead)
	assert.Equal(t, "department_match", lifecycle.Rule(err))

	h.advance(36 * time.Hour)
	resp, err := h.disputes.ApproveDispute(ctx, c.ComplaintID, signoff.SignoffID, deptHead)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, resp.Status)
	assert.Equal(t, models.PriorityHigh, resp.PreviousPriority)
	assert.Equal(t, models.PriorityCritical, resp.Priority)
	assert.Equal(t, 8, resp.SLADaysAssigned)
	assert.Equal(t, 2, resp.ProofsRemoved)
	assert.Equal(t, 0, resp.EscalationLevel)

	got := h.reload(t, c.ComplaintID)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, models.PriorityCritical, got.Priority)
	assert.Equal(t, 0, got.EscalationLevel)
	assert.Equal(t, h.clock.AddDate(0, 0, 8), got.SLADeadline.Time)
	assert.False(t, got.ResolvedTime.Valid)

	n, err := store.CountProofs(ctx, c.ComplaintID)
	require.NoError(t, err)
	assert.Zero(t, n)

	decided, err := store.GetSignoff(ctx, signoff.SignoffID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeApproved, decided.DisputeOutcome)
	assert.Equal(t, deptHead.UserID, decided.DisputeReviewedBy.Int64)

	// re-resolving needs fresh proof
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "")
	var proofErr *lifecycle.ResolutionProofRequiredError
	require.ErrorAs(t, err, &proofErr)

	// a decided dispute cannot be decided again
	_, err = h.disputes.RejectDispute(ctx, c.ComplaintID, signoff.SignoffID, "late", deptHead)
	assert.Equal(t, "dispute_state", lifecycle.Rule(err))

	actions := map[string]bool{}
	for _, a := range store.AuditLogs("complaint", c.ComplaintID) {
		actions[a.Action] = true
	}
	assert.True(t, actions["dispute_approved"])
}

func TestApproveDispute_PriorityIsMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.resolved(t)

	want := []models.Priority{models.PriorityHigh, models.PriorityCritical, models.PriorityCritical}
	for i, p := range want {
		signoff, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "round " + itoa(int64(i))})
		require.NoError(t, err)
		resp, err := h.disputes.ApproveDispute(ctx, c.ComplaintID, signoff.SignoffID, deptHead)
		require.NoError(t, err)
		assert.Equal(t, p, resp.Priority)
		assert.GreaterOrEqual(t, resp.Priority.Rank(), resp.PreviousPriority.Rank())

		_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/retry.jpg")
		require.NoError(t, err)
		_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "")
		require.NoError(t, err)
	}
}

func TestRejectDispute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.resolved(t)
	before := h.reload(t, c.ComplaintID)

	signoff, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "meh"})
	require.NoError(t, err)

	_, err = h.disputes.RejectDispute(ctx, c.ComplaintID, signoff.SignoffID, " ", deptHead)
	var verr *lifecycle.ValidationError
	require.ErrorAs(t, err, &verr)

	resp, err := h.disputes.RejectDispute(ctx, c.ComplaintID, signoff.SignoffID, "photo shows the light working", deptHead)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeRejected, resp.Outcome)
	assert.Equal(t, models.StatusResolved, resp.Status)

	after := h.reload(t, c.ComplaintID)
	assert.Equal(t, before.Priority, after.Priority)
	assert.Equal(t, before.SLADeadline, after.SLADeadline)

	n, err := h.store.CountProofs(ctx, c.ComplaintID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rejection keeps the proof")

	pending, err := h.disputes.PendingDisputes(ctx, adminActor, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// a fresh dispute may be filed after the rejection
	_, err = h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "really not fixed"})
	require.NoError(t, err)
}

func TestReviewDispute_WrongComplaint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.resolved(t)
	b := h.resolved(t)

	signoff, err := h.disputes.SubmitDispute(ctx, a.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "no"})
	require.NoError(t, err)

	_, err = h.disputes.ApproveDispute(ctx, b.ComplaintID, signoff.SignoffID, deptHead)
	assert.Equal(t, "dispute_state", lifecycle.Rule(err))
	_, err = h.disputes.ApproveDispute(ctx, a.ComplaintID, 999, deptHead)
	assert.Equal(t, "not_found", lifecycle.Rule(err))
}

func TestPendingDisputes_Visibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.resolved(t)
	_, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "no"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		actor   models.ActorContext
		dept    *int64
		want    int
		errRule string
	}{
		{"own department head", deptHead, nil, 1, ""},
		{"other department head", otherHead, nil, 0, ""},
		{"head asks for another department", deptHead, ptr(int64(4)), 0, "department_match"},
		{"admin sees all", adminActor, nil, 1, ""},
		{"admin filters", adminActor, ptr(int64(4)), 0, ""},
		{"staff forbidden", staff, nil, 0, "forbidden"},
		{"citizen forbidden", citizen, nil, 0, "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.disputes.PendingDisputes(ctx, tt.actor, tt.dept)
			if tt.errRule != "" {
				assert.Equal(t, tt.errRule, lifecycle.Rule(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSubmitSignoff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("acceptance closes", func(t *testing.T) {
		c := h.resolved(t)
		_, err := h.signoffs.SubmitSignoff(ctx, c.ComplaintID, citizen, &models.SubmitSignoffRequest{IsAccepted: true, Rating: ptr(9)})
		var verr *lifecycle.ValidationError
		require.ErrorAs(t, err, &verr)

		resp, err := h.signoffs.SubmitSignoff(ctx, c.ComplaintID, citizen, &models.SubmitSignoffRequest{IsAccepted: true, Rating: ptr(4)})
		require.NoError(t, err)
		require.NotNil(t, resp.Transition)
		assert.Equal(t, models.StatusClosed, resp.Transition.NewStatus)
		assert.Equal(t, int64(4), resp.Signoff.Rating.Int64)

		ok, err := h.signoffs.HasAcceptedSignoff(ctx, c.ComplaintID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("non acceptance becomes a dispute", func(t *testing.T) {
		c := h.resolved(t)
		reason := "broken again"
		resp, err := h.signoffs.SubmitSignoff(ctx, c.ComplaintID, citizen, &models.SubmitSignoffRequest{DisputeReason: &reason})
		require.NoError(t, err)
		assert.Nil(t, resp.Transition)
		assert.Equal(t, models.DisputePending, resp.Signoff.DisputeOutcome)

		// acceptance is blocked while the dispute is pending
		_, err = h.signoffs.SubmitSignoff(ctx, c.ComplaintID, citizen, &models.SubmitSignoffRequest{IsAccepted: true, Rating: ptr(5)})
		assert.Equal(t, "dispute_state", lifecycle.Rule(err))
		assert.Equal(t, models.StatusResolved, h.reload(t, c.ComplaintID).Status)
	})

	t.Run("only the owner", func(t *testing.T) {
		c := h.resolved(t)
		_, err := h.signoffs.SubmitSignoff(ctx, c.ComplaintID, otherUser, &models.SubmitSignoffRequest{IsAccepted: true, Rating: ptr(5)})
		assert.Equal(t, "complaint_ownership", lifecycle.Rule(err))
		signoffs, err := h.signoffs.ListSignoffs(ctx, c.ComplaintID)
		require.NoError(t, err)
		assert.Empty(t, signoffs, "rejected acceptance leaves no row")
	})
}

func TestProofs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.fileComplaint(t)

	_, err := h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://x")
	assert.Equal(t, "state_graph", lifecycle.Rule(err), "no proof before work starts")

	_, err = h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)

	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, citizen, "s3://x")
	assert.Equal(t, "forbidden", lifecycle.Rule(err))
	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "")
	assert.Equal(t, "validation", lifecycle.Rule(err))

	proof, err := h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/fixed.jpg")
	require.NoError(t, err)
	assert.Len(t, proof.Fingerprint, 64)
	assert.False(t, proof.IsVerified)

	has, err := h.proofs.HasProof(ctx, c.ComplaintID)
	require.NoError(t, err)
	assert.True(t, has, "unverified proof satisfies the guard")

	_, err = h.proofs.VerifyProof(ctx, c.ComplaintID, proof.ProofID, staff)
	assert.Equal(t, "forbidden", lifecycle.Rule(err))
	_, err = h.proofs.VerifyProof(ctx, c.ComplaintID, proof.ProofID, otherHead)
	assert.Equal(t, "department_match", lifecycle.Rule(err))

	verified, err := h.proofs.VerifyProof(ctx, c.ComplaintID, proof.ProofID, deptHead)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.Equal(t, deptHead.UserID, verified.VerifiedBy.Int64)

	list, err := h.proofs.ListProofs(ctx, c.ComplaintID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsVerified)
}
