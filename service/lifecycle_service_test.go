package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"civicflow/lifecycle"
	"civicflow/memstore"
	"civicflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileComplaint_DerivesSLAFromCategory(t *testing.T) {
	store := memstore.New()
	store.SetCategorySLA(9, 10)
	h := newHarnessWithStores(t, store, nil)

	c := &models.Complaint{CitizenID: 5, Title: "Pothole", CategoryID: nullInt(9)}
	require.NoError(t, h.lifecycle.FileComplaint(context.Background(), c))

	assert.Equal(t, models.StatusFiled, c.Status)
	assert.Equal(t, models.PriorityMedium, c.Priority)
	assert.Equal(t, 10, c.SLADaysAssigned)
	assert.Equal(t, testNow.AddDate(0, 0, 10), c.SLADeadline.Time)
	assert.NotEmpty(t, c.ComplaintNumber)

	timeline, err := h.lifecycle.Timeline(context.Background(), c.ComplaintID)
	require.NoError(t, err)
	require.Len(t, timeline.Timeline, 1)
	assert.Equal(t, models.StatusFiled, timeline.Timeline[0].NewStatus)
	assert.False(t, timeline.Timeline[0].OldStatus.Valid)
}

func TestFileComplaint_DefaultSLA(t *testing.T) {
	h := newHarness(t)
	c := h.fileComplaint(t)
	assert.Equal(t, defaultSLADays, c.SLADaysAssigned)
}

func TestTransitionState_SystemStartRecordsHistoryAndAudit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.fileComplaint(t)

	resp, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFiled, resp.PreviousStatus)
	assert.Equal(t, models.StatusInProgress, resp.NewStatus)
	assert.Equal(t, models.RoleSystem, resp.ActorRole)

	got := h.reload(t, c.ComplaintID)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.True(t, got.StartTime.Valid)
	assert.Equal(t, c.Version+1, got.Version)

	timeline, err := h.lifecycle.Timeline(ctx, c.ComplaintID)
	require.NoError(t, err)
	require.Len(t, timeline.Timeline, 2)
	last := timeline.Timeline[1]
	assert.Equal(t, "FILED", last.OldStatus.String)
	assert.Equal(t, models.RoleSystem, last.ActorRole)
	assert.False(t, last.ActorID.Valid, "system actor id is stored as NULL")

	audit := h.store.AuditLogs("complaint", c.ComplaintID)
	require.Len(t, audit, 1)
	assert.Equal(t, "status_change", audit[0].Action)

	// assigned staff and citizen were both notified
	kinds := map[models.NotificationKind]bool{}
	for _, n := range h.store.Notifications(c.ComplaintID) {
		kinds[n.Kind] = true
		assert.Equal(t, models.NotificationStatusSent, n.Status)
	}
	assert.True(t, kinds[models.NotifyStatusChanged])
	assert.True(t, kinds[models.NotifyAssigned])
}

func TestTransitionState_RejectionsLeaveNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.fileComplaint(t)

	tests := []struct {
		name   string
		target models.ComplaintStatus
		actor  models.ActorContext
		rule   string
	}{
		{"staff cannot start", models.StatusInProgress, staff, "transition_policy"},
		{"super admin cannot start", models.StatusInProgress, models.ActorContext{UserID: 1, Role: models.RoleSuperAdmin}, "transition_policy"},
		{"skip to resolved", models.StatusResolved, staff, "state_graph"},
		{"stranger cancels", models.StatusCancelled, otherUser, "complaint_ownership"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.lifecycle.TransitionState(ctx, c.ComplaintID, tt.target, tt.actor, "")
			require.Error(t, err)
			assert.Equal(t, tt.rule, lifecycle.Rule(err))
		})
	}

	got := h.reload(t, c.ComplaintID)
	assert.Equal(t, models.StatusFiled, got.Status)
	assert.Equal(t, c.Version, got.Version)
	assert.Empty(t, h.store.AuditLogs("complaint", c.ComplaintID))
}

func TestTransitionState_UnknownTarget(t *testing.T) {
	h := newHarness(t)
	c := h.fileComplaint(t)
	_, err := h.lifecycle.TransitionState(context.Background(), c.ComplaintID, "REOPENED", adminActor, "")
	var verr *lifecycle.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTransitionState_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.lifecycle.SystemStart(context.Background(), 999)
	assert.Equal(t, "not_found", lifecycle.Rule(err))
}

func TestResolve_RequiresProof(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.fileComplaint(t)
	_, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)

	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "")
	var proofErr *lifecycle.ResolutionProofRequiredError
	require.ErrorAs(t, err, &proofErr)

	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, models.ActorContext{UserID: 21, Role: models.RoleStaff, DepartmentID: ptr(int64(4))}, "")
	assert.Equal(t, "department_match", lifecycle.Rule(err))
}

func TestResolve_QueuesRatingRequestOnce(t *testing.T) {
	h := newHarness(t)
	c := h.resolved(t)

	count := func() int {
		n := 0
		for _, row := range h.store.Notifications(c.ComplaintID) {
			if row.Kind == models.NotifyRatingRequest {
				n++
				assert.Equal(t, "rating_request:"+itoa(c.ComplaintID), row.DedupKey.String)
			}
		}
		return n
	}
	assert.Equal(t, 1, count())

	// a second resolve inside the window (after an approved dispute) does not re-ask
	ctx := context.Background()
	signoff, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "still dark"})
	require.NoError(t, err)
	_, err = h.disputes.ApproveDispute(ctx, c.ComplaintID, signoff.SignoffID, deptHead)
	require.NoError(t, err)
	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/photo-2.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "fixed again")
	require.NoError(t, err)
	assert.Equal(t, 1, count())

	h.advance(DefaultDedupWindow + 1)
	signoff, err = h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "dark again"})
	require.NoError(t, err)
	_, err = h.disputes.ApproveDispute(ctx, c.ComplaintID, signoff.SignoffID, deptHead)
	require.NoError(t, err)
	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/photo-3.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "")
	require.NoError(t, err)
	assert.Equal(t, 2, count())
}

func TestClose_CitizenNeedsSignoffSystemDoesNot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c := h.resolved(t)
	_, err := h.lifecycle.Close(ctx, c.ComplaintID, citizen, "")
	var signoffErr *lifecycle.SignoffRequiredError
	require.ErrorAs(t, err, &signoffErr)

	resp, err := h.lifecycle.SystemClose(ctx, c.ComplaintID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, resp.NewStatus)

	got := h.reload(t, c.ComplaintID)
	assert.True(t, got.ClosedTime.Valid)

	points, err := h.store.TotalPoints(ctx, citizen.UserID)
	require.NoError(t, err)
	assert.Equal(t, 10, points)

	_, err = h.lifecycle.Cancel(ctx, c.ComplaintID, adminActor, "")
	assert.Equal(t, "state_graph", lifecycle.Rule(err))
}

func TestHoldAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.fileComplaint(t)
	_, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)

	_, err = h.lifecycle.Hold(ctx, c.ComplaintID, staff, "waiting on parts")
	require.NoError(t, err)
	started := h.reload(t, c.ComplaintID).StartTime

	h.advance(48 * time.Hour)
	resp, err := h.lifecycle.Resume(ctx, c.ComplaintID, deptHead, "")
	require.NoError(t, err)
	assert.Equal(t, "Work on the complaint has resumed", resp.Message)
	assert.Equal(t, started, h.reload(t, c.ComplaintID).StartTime, "resume keeps the first start time")

	var assigned []models.Notification
	for _, n := range h.store.Notifications(c.ComplaintID) {
		if n.Kind == models.NotifyAssigned {
			assigned = append(assigned, n)
		}
	}
	require.Len(t, assigned, 2, "staff hear about the start and the resume")
	assert.Contains(t, assigned[1].Subject, "resumed")
	assert.Equal(t, staff.UserID, assigned[1].RecipientID.Int64)
}

// downNotifier fails every delivery.
type downNotifier struct{}

var errNotifierDown = errors.New("smtp down")

func (downNotifier) Send(context.Context, *models.NotificationRequest) error { return errNotifierDown }

func (downNotifier) SendWithDeduplication(context.Context, *models.NotificationRequest, string, time.Duration) (bool, error) {
	return false, errNotifierDown
}

func TestTransitions_SurviveNotifierFailure(t *testing.T) {
	h := newHarness(t)
	h.lifecycle.effects.notifier = downNotifier{}
	h.disputes.effects.notifier = downNotifier{}
	ctx := context.Background()
	c := h.fileComplaint(t)

	resp, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, resp.NewStatus)
	assert.Equal(t, models.StatusInProgress, h.reload(t, c.ComplaintID).Status)

	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/photo-1.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "fixed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, h.reload(t, c.ComplaintID).Status)

	dispute, err := h.disputes.SubmitDispute(ctx, c.ComplaintID, citizen, &models.SubmitDisputeRequest{DisputeReason: "still dark"})
	require.NoError(t, err)
	_, err = h.disputes.ApproveDispute(ctx, c.ComplaintID, dispute.SignoffID, deptHead)
	require.NoError(t, err)
	got := h.reload(t, c.ComplaintID)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, models.PriorityHigh, got.Priority)

	h.effects.mu.Lock()
	defer h.effects.mu.Unlock()
	for _, name := range []string{"notify:status_changed", "notify:resolved", "notify:rating_request", "notify:dispute_approved"} {
		assert.ErrorIs(t, h.effects.errors[name], errNotifierDown, name)
	}
	assert.Empty(t, h.store.Notifications(c.ComplaintID), "nothing was delivered")
}

func TestAllowedTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.fileComplaint(t)

	got, err := h.lifecycle.AllowedTransitions(ctx, c.ComplaintID, models.SystemActor())
	require.NoError(t, err)
	assert.Equal(t, []models.ComplaintStatus{models.StatusInProgress}, got.Allowed)

	got, err = h.lifecycle.AllowedTransitions(ctx, c.ComplaintID, otherUser)
	require.NoError(t, err)
	assert.Empty(t, got.Allowed)
}

// failingAudit fails every write after the first n.
type failingAudit struct {
	AuditStore
	allow int
}

var errAuditDown = errors.New("audit store unavailable")

func (f *failingAudit) CreateAuditLog(ctx context.Context, a *models.AuditLog) error {
	if f.allow <= 0 {
		return errAuditDown
	}
	f.allow--
	return f.AuditStore.CreateAuditLog(ctx, a)
}

func TestTransitionState_AuditFailureRollsBack(t *testing.T) {
	store := memstore.New()
	audit := &failingAudit{AuditStore: store}
	h := newHarnessWithStores(t, store, func(s *Stores) { s.Audit = audit })
	c := h.fileComplaint(t)

	_, err := h.lifecycle.SystemStart(context.Background(), c.ComplaintID)
	require.ErrorIs(t, err, errAuditDown)

	got := h.reload(t, c.ComplaintID)
	assert.Equal(t, models.StatusFiled, got.Status)
	assert.Equal(t, c.Version, got.Version)
	timeline, err := h.lifecycle.Timeline(context.Background(), c.ComplaintID)
	require.NoError(t, err)
	assert.Len(t, timeline.Timeline, 1)
	assert.Empty(t, h.store.Notifications(c.ComplaintID), "no side effects for a rolled back transition")
}

func TestPublicComplaint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.fileComplaint(t)
	_, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)

	view, err := h.lifecycle.PublicComplaint(ctx, c.ComplaintNumber)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, models.StatusInProgress, view.CurrentStatus)
	require.Len(t, view.Timeline, 2)
	assert.Equal(t, models.StatusFiled, view.Timeline[1].OldStatus)

	view, err = h.lifecycle.PublicComplaint(ctx, "CMP-NOPE")
	require.NoError(t, err)
	assert.Nil(t, view)
}
