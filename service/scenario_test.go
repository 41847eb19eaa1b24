package service

import (
	"context"
	"testing"
	"time"

	"civicflow/lifecycle"
	"civicflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComplaintJourney walks one complaint through filing, a disputed resolution,
// an SLA breach and a final acceptance.
func TestComplaintJourney(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c := h.fileComplaint(t)
	_, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)

	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/before-after.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "bulb replaced")
	require.NoError(t, err)

	dispute, err := h.signoffs.SubmitSignoff(ctx, c.ComplaintID, citizen, &models.SubmitSignoffRequest{
		DisputeReason: ptr("still flickering"),
	})
	require.NoError(t, err)
	assert.True(t, dispute.Signoff.IsPendingDispute())

	_, err = h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "again"})
	var dup *lifecycle.DuplicateDisputeError
	require.ErrorAs(t, err, &dup)

	decision, err := h.disputes.ApproveDispute(ctx, c.ComplaintID, dispute.Signoff.SignoffID, deptHead)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, decision.Priority)
	assert.Equal(t, 6, decision.SLADaysAssigned)

	// the shortened deadline passes and the sweep escalates
	h.advance(10 * 24 * time.Hour)
	report, err := h.escalations.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, 2, h.reload(t, c.ComplaintID).EscalationLevel)

	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, deptHead, "s3://evidence/new-fixture.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, deptHead, "fixture replaced")
	require.NoError(t, err)

	accepted, err := h.signoffs.SubmitSignoff(ctx, c.ComplaintID, citizen, &models.SubmitSignoffRequest{
		IsAccepted: true,
		Rating:     ptr(4),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, accepted.Transition.NewStatus)

	timeline, err := h.lifecycle.Timeline(ctx, c.ComplaintID)
	require.NoError(t, err)
	var path []models.ComplaintStatus
	for _, entry := range timeline.Timeline {
		path = append(path, entry.NewStatus)
	}
	assert.Equal(t, []models.ComplaintStatus{
		models.StatusFiled, models.StatusInProgress, models.StatusResolved,
		models.StatusInProgress, models.StatusResolved, models.StatusClosed,
	}, path)

	got := h.reload(t, c.ComplaintID)
	assert.True(t, got.ClosedTime.Valid)
	for _, r := range report.Results {
		assert.Equal(t, models.RoleAdmin, r.TargetRole)
	}
	assert.Empty(t, h.effects.errors)
}
