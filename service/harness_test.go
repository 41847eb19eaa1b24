package service

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"civicflow/memstore"
	"civicflow/models"
	"civicflow/notification"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// syncEffects runs side effects inline after commit and records their failures.
type syncEffects struct {
	mu     sync.Mutex
	names  []string
	errors map[string]error
}

func (e *syncEffects) Dispatch(name string, job func(ctx context.Context) error) {
	err := job(context.Background())
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
	if err != nil {
		if e.errors == nil {
			e.errors = map[string]error{}
		}
		e.errors[name] = err
	}
}

type harness struct {
	store         *memstore.Store
	stores        Stores
	effects       *syncEffects
	notifications *NotificationService
	lifecycle     *LifecycleService
	disputes      *DisputeService
	proofs        *ProofService
	signoffs      *SignoffService
	escalations   *EscalationService
	clock         *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStores(t, memstore.New(), nil)
}

// newHarnessWithStores builds every service on store. override, when set, may swap
// individual stores before the services are wired.
func newHarnessWithStores(t *testing.T, store *memstore.Store, override func(*Stores)) *harness {
	t.Helper()
	stores := Stores{
		Tx:            store,
		Complaints:    store,
		Proofs:        store,
		Signoffs:      store,
		Escalations:   store,
		Audit:         store,
		Categories:    store,
		Notifications: store,
		Rewards:       store,
	}
	if override != nil {
		override(&stores)
	}

	logger := zap.NewNop()
	clock := testNow
	now := func() time.Time { return clock }

	effects := &syncEffects{}
	telemetry := NewTelemetry()
	notifications := NewNotificationService(stores.Tx, stores.Notifications,
		[]notification.Sender{notification.NewInAppSender(logger)}, nil, logger)
	notifications.now = now
	audit := NewAuditService(stores.Audit)
	audit.now = now
	rewards := NewRewardService(stores.Rewards, 10, logger)
	rewards.now = now

	lifecycleSvc := NewLifecycleService(stores, audit, notifications, rewards, effects, telemetry, logger)
	lifecycleSvc.now = now
	disputes := NewDisputeService(stores, audit, notifications, effects, telemetry, logger)
	disputes.now = now
	proofs := NewProofService(stores, audit, logger)
	proofs.now = now
	escalations := NewEscalationService(stores, nil, audit, notifications, effects, telemetry, logger, DefaultEscalationConfig())
	escalations.now = now

	return &harness{
		store:         store,
		stores:        stores,
		effects:       effects,
		notifications: notifications,
		lifecycle:     lifecycleSvc,
		disputes:      disputes,
		proofs:        proofs,
		signoffs:      NewSignoffService(stores, lifecycleSvc, disputes, logger),
		escalations:   escalations,
		clock:         &clock,
	}
}

// advance moves the shared clock forward.
func (h *harness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

var (
	citizen    = models.ActorContext{UserID: 5, Role: models.RoleCitizen}
	otherUser  = models.ActorContext{UserID: 6, Role: models.RoleCitizen}
	staff      = models.ActorContext{UserID: 20, Role: models.RoleStaff, DepartmentID: ptr(int64(3))}
	deptHead   = models.ActorContext{UserID: 40, Role: models.RoleDeptHead, DepartmentID: ptr(int64(3))}
	otherHead  = models.ActorContext{UserID: 41, Role: models.RoleDeptHead, DepartmentID: ptr(int64(4))}
	adminActor = models.ActorContext{UserID: 50, Role: models.RoleAdmin}
)

func ptr[T any](v T) *T { return &v }

func nullInt(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// fileComplaint files a MEDIUM complaint for citizen 5 in department 3, assigned to staff 20.
func (h *harness) fileComplaint(t *testing.T) *models.Complaint {
	t.Helper()
	c := &models.Complaint{
		CitizenID:    citizen.UserID,
		Title:        "Streetlight out",
		Description:  "The light at the corner has been dark for a week",
		DepartmentID: nullInt(3),
		StaffID:      nullInt(staff.UserID),
		Priority:     models.PriorityMedium,
	}
	require.NoError(t, h.lifecycle.FileComplaint(context.Background(), c))
	return c
}

// resolved drives a fresh complaint to RESOLVED with one proof.
func (h *harness) resolved(t *testing.T) *models.Complaint {
	t.Helper()
	ctx := context.Background()
	c := h.fileComplaint(t)
	_, err := h.lifecycle.SystemStart(ctx, c.ComplaintID)
	require.NoError(t, err)
	_, err = h.proofs.SubmitProof(ctx, c.ComplaintID, staff, "s3://evidence/photo-1.jpg")
	require.NoError(t, err)
	_, err = h.lifecycle.Resolve(ctx, c.ComplaintID, staff, "fixed")
	require.NoError(t, err)
	return h.reload(t, c.ComplaintID)
}

func (h *harness) reload(t *testing.T, id int64) *models.Complaint {
	t.Helper()
	c, err := h.store.GetComplaintByID(context.Background(), id)
	require.NoError(t, err)
	return c
}
