package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"civicflow/memstore"
	"civicflow/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysOverdue(t *testing.T) {
	deadline := testNow
	tests := []struct {
		now  time.Time
		want int
	}{
		{deadline.Add(-time.Hour), 0},
		{deadline, 0},
		{deadline.Add(23 * time.Hour), 0},
		{deadline.Add(24 * time.Hour), 1},
		{deadline.Add(71 * time.Hour), 2},
		{deadline.AddDate(0, 0, 14), 14},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, daysOverdue(tt.now, deadline), "now %s", tt.now)
	}
}

func TestEscalationPolicy_Default(t *testing.T) {
	p := DefaultEscalationPolicy()
	require.NoError(t, p.Validate())

	tests := map[int]models.Role{0: models.RoleDeptHead, 2: models.RoleDeptHead, 3: models.RoleAdmin,
		6: models.RoleAdmin, 7: models.RoleMunicipalCommissioner, 13: models.RoleMunicipalCommissioner,
		14: models.RoleSuperAdmin, 400: models.RoleSuperAdmin}
	for days, role := range tests {
		step, ok := p.StepFor(days)
		require.True(t, ok)
		assert.Equal(t, role, step.Role, "days %d", days)
	}
	assert.Equal(t, 4, p.LevelFor(30))
}

func TestParseEscalationPolicy(t *testing.T) {
	good := []byte(`
levels:
  - min_days_overdue: 1
    level: 1
    role: DEPT_HEAD
  - min_days_overdue: 5
    level: 2
    role: MUNICIPAL_COMMISSIONER
`)
	p, err := ParseEscalationPolicy(good)
	require.NoError(t, err)
	want := &EscalationPolicy{Steps: []EscalationStep{
		{MinDaysOverdue: 1, Level: 1, Role: models.RoleDeptHead},
		{MinDaysOverdue: 5, Level: 2, Role: models.RoleMunicipalCommissioner},
	}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("policy mismatch (-want +got):\n%s", diff)
	}
	_, ok := p.StepFor(0)
	assert.False(t, ok, "nothing before the first step")

	bad := map[string]string{
		"empty":          "levels: []",
		"citizen role":   "levels: [{min_days_overdue: 0, level: 1, role: CITIZEN}]",
		"unknown role":   "levels: [{min_days_overdue: 0, level: 1, role: MAYOR}]",
		"level zero":     "levels: [{min_days_overdue: 0, level: 0, role: ADMIN}]",
		"negative days":  "levels: [{min_days_overdue: -1, level: 1, role: ADMIN}]",
		"days decrease":  "levels: [{min_days_overdue: 5, level: 1, role: ADMIN}, {min_days_overdue: 2, level: 2, role: SUPER_ADMIN}]",
		"levels repeat":  "levels: [{min_days_overdue: 0, level: 1, role: ADMIN}, {min_days_overdue: 2, level: 1, role: SUPER_ADMIN}]",
		"malformed yaml": "levels: [",
	}
	for name, doc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEscalationPolicy([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadEscalationPolicy(t *testing.T) {
	p, err := LoadEscalationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEscalationPolicy(), p)

	_, err = LoadEscalationPolicy(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}

// overdueComplaint files an IN_PROGRESS complaint whose deadline passed daysAgo days ago.
func (h *harness) overdueComplaint(t *testing.T, daysAgo int) *models.Complaint {
	t.Helper()
	ctx := context.Background()
	c := h.fileComplaint(t)
	_, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)
	require.NoError(t, h.store.WithinTx(ctx, func(ctx context.Context) error {
		got, err := h.store.GetComplaintByID(ctx, c.ComplaintID)
		if err != nil {
			return err
		}
		got.SLADeadline.Time = h.clock.AddDate(0, 0, -daysAgo).Add(-time.Minute)
		return h.store.UpdateComplaint(ctx, got)
	}))
	return h.reload(t, c.ComplaintID)
}

func escalationNotices(store *memstore.Store, complaintID int64) []models.Notification {
	var out []models.Notification
	for _, n := range store.Notifications(complaintID) {
		if n.Kind == models.NotifyEscalated {
			out = append(out, n)
		}
	}
	return out
}

func TestRunSweep_EscalatesToRequiredLevel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fresh := h.fileComplaint(t)
	day0 := h.overdueComplaint(t, 0)
	day4 := h.overdueComplaint(t, 4)
	day20 := h.overdueComplaint(t, 20)

	report, err := h.escalations.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 3, report.Escalated)
	assert.Zero(t, report.Failed)
	assert.False(t, report.Truncated)

	assert.Equal(t, 0, h.reload(t, fresh.ComplaintID).EscalationLevel)
	assert.Equal(t, 1, h.reload(t, day0.ComplaintID).EscalationLevel)
	assert.Equal(t, 2, h.reload(t, day4.ComplaintID).EscalationLevel)
	assert.Equal(t, 4, h.reload(t, day20.ComplaintID).EscalationLevel, "levels may be skipped")

	events, err := h.escalations.History(ctx, day20.ComplaintID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].PreviousLevel)
	assert.Equal(t, 4, events[0].EscalationLevel)
	assert.Equal(t, models.RoleSuperAdmin, events[0].EscalatedToRole)
	assert.Equal(t, 20, events[0].DaysOverdue)

	notices := escalationNotices(h.store, day4.ComplaintID)
	require.Len(t, notices, 1)
	assert.Equal(t, models.RoleAdmin, notices[0].RecipientRole)
	assert.Equal(t, fmt.Sprintf("escalation:%d:L2", day4.ComplaintID), notices[0].DedupKey.String)

	audit := h.store.AuditLogs("complaint", day4.ComplaintID)
	assert.Equal(t, "escalated", audit[len(audit)-1].Action)
	assert.Equal(t, models.RoleSystem, audit[len(audit)-1].ActorRole)
}

func TestRunSweep_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.overdueComplaint(t, 4)

	_, err := h.escalations.RunSweep(ctx)
	require.NoError(t, err)
	before := h.reload(t, c.ComplaintID)

	report, err := h.escalations.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Zero(t, report.Escalated)
	assert.Equal(t, 1, report.Skipped)

	after := h.reload(t, c.ComplaintID)
	assert.Equal(t, before.Version, after.Version)
	events, err := h.escalations.History(ctx, c.ComplaintID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, escalationNotices(h.store, c.ComplaintID), 1)

	// three more days: the next level is due
	h.advance(3 * 24 * time.Hour)
	report, err = h.escalations.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, 3, h.reload(t, c.ComplaintID).EscalationLevel)
	assert.Len(t, escalationNotices(h.store, c.ComplaintID), 2)
}

func TestRunSweep_IgnoresResolvedAndTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c := h.overdueComplaint(t, 10)
	_, err := h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/done.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "")
	require.NoError(t, err)

	held := h.overdueComplaint(t, 1)
	_, err = h.lifecycle.Hold(ctx, held.ComplaintID, staff, "")
	require.NoError(t, err)

	report, err := h.escalations.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned, "only the HOLD complaint is active")
	assert.Equal(t, 0, h.reload(t, c.ComplaintID).EscalationLevel)
	assert.Equal(t, 1, h.reload(t, held.ComplaintID).EscalationLevel)
}

func TestRunSweep_BatchLimit(t *testing.T) {
	h := newHarness(t)
	h.escalations.config.BatchSize = 2
	var filed []*models.Complaint
	for i := 0; i < 3; i++ {
		filed = append(filed, h.overdueComplaint(t, i))
	}

	report, err := h.escalations.RunSweep(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Truncated)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Escalated)

	// oldest deadlines first
	assert.Equal(t, 0, h.reload(t, filed[0].ComplaintID).EscalationLevel)
	assert.Equal(t, 1, h.reload(t, filed[1].ComplaintID).EscalationLevel)
	assert.Equal(t, 1, h.reload(t, filed[2].ComplaintID).EscalationLevel)
}

func TestRunSweep_AuditFailureRollsBackEscalation(t *testing.T) {
	store := memstore.New()
	audit := &failingAudit{AuditStore: store, allow: 1}
	h := newHarnessWithStores(t, store, func(s *Stores) { s.Audit = audit })
	c := h.overdueComplaint(t, 4) // uses the one allowed audit write

	report, err := h.escalations.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Escalated)
	assert.Contains(t, report.Results[0].Reason, errAuditDown.Error())

	assert.Equal(t, 0, h.reload(t, c.ComplaintID).EscalationLevel)
	events, err := h.escalations.History(context.Background(), c.ComplaintID)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, escalationNotices(store, c.ComplaintID))
}

func TestOverdueAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fileComplaint(t)
	c := h.overdueComplaint(t, 8)

	overdue, err := h.escalations.Overdue(ctx, 0)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, c.ComplaintID, overdue[0].ComplaintID)
	assert.Equal(t, 8, overdue[0].DaysOverdue)
	assert.Equal(t, 0, overdue[0].EscalationLevel)
	assert.Equal(t, 3, overdue[0].RequiredLevel)

	_, err = h.escalations.RunSweep(ctx)
	require.NoError(t, err)

	stats, err := h.escalations.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ActiveComplaints)
	assert.Equal(t, 1, stats.OverdueComplaints)
	assert.Equal(t, map[int]int{0: 1, 3: 1}, stats.ByLevel)
	assert.Equal(t, 1, stats.EventsLast24h)

	n, err := h.escalations.TriggerSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
