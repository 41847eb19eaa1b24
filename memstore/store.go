// Package memstore is an in-memory implementation of every store the services use.
// It backs the service tests and `serve --memory`.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"civicflow/lifecycle"
	"civicflow/models"
)

type txKey struct{}

// Store holds all tables behind one mutex. A unit of work holds the mutex for its
// whole duration and is rolled back from a snapshot when it fails.
type Store struct {
	mu sync.Mutex

	complaints    map[int64]models.Complaint
	proofs        map[int64]models.ResolutionProof
	signoffs      map[int64]models.CitizenSignoff
	categories    map[int64]int
	history       []models.StatusHistory
	audit         []models.AuditLog
	events        []models.EscalationEvent
	notifications []models.Notification
	rewards       []models.RewardEntry

	nextID int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		complaints: map[int64]models.Complaint{},
		proofs:     map[int64]models.ResolutionProof{},
		signoffs:   map[int64]models.CitizenSignoff{},
		categories: map[int64]int{},
	}
}

type snapshot struct {
	complaints    map[int64]models.Complaint
	proofs        map[int64]models.ResolutionProof
	signoffs      map[int64]models.CitizenSignoff
	categories    map[int64]int
	history       []models.StatusHistory
	audit         []models.AuditLog
	events        []models.EscalationEvent
	notifications []models.Notification
	rewards       []models.RewardEntry
	nextID        int64
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		complaints:    maps.Clone(s.complaints),
		proofs:        maps.Clone(s.proofs),
		signoffs:      maps.Clone(s.signoffs),
		categories:    maps.Clone(s.categories),
		history:       slices.Clone(s.history),
		audit:         slices.Clone(s.audit),
		events:        slices.Clone(s.events),
		notifications: slices.Clone(s.notifications),
		rewards:       slices.Clone(s.rewards),
		nextID:        s.nextID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.complaints = snap.complaints
	s.proofs = snap.proofs
	s.signoffs = snap.signoffs
	s.categories = snap.categories
	s.history = snap.history
	s.audit = snap.audit
	s.events = snap.events
	s.notifications = snap.notifications
	s.rewards = snap.rewards
	s.nextID = snap.nextID
}

// WithinTx runs fn holding the store lock; any error or panic restores the state
// seen on entry. A nested call joins the outer unit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	committed := false
	defer func() {
		if !committed {
			s.restore(snap)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the mutex unless ctx already belongs to a unit of work on s.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

// SetCategorySLA configures the default SLA days of a category.
func (s *Store) SetCategorySLA(categoryID int64, days int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[categoryID] = days
}

// Complaints

// CreateComplaint inserts c, assigning its id, number and first version.
func (s *Store) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	defer s.lock(ctx)()
	c.ComplaintID = s.newID()
	if c.ComplaintNumber == "" {
		c.ComplaintNumber = fmt.Sprintf("CMP-%s-%08d", c.CreatedTime.UTC().Format("20060102"), c.ComplaintID)
	}
	c.Version = 1
	s.complaints[c.ComplaintID] = *c
	return nil
}

// GetComplaintByID returns a copy of the complaint or a not-found error.
func (s *Store) GetComplaintByID(ctx context.Context, complaintID int64) (*models.Complaint, error) {
	defer s.lock(ctx)()
	c, ok := s.complaints[complaintID]
	if !ok {
		return nil, lifecycle.NotFound("complaint", complaintID)
	}
	return &c, nil
}

// GetComplaintByNumber returns the complaint with number, or nil.
func (s *Store) GetComplaintByNumber(ctx context.Context, number string) (*models.Complaint, error) {
	defer s.lock(ctx)()
	for _, c := range s.complaints {
		if c.ComplaintNumber == number {
			return &c, nil
		}
	}
	return nil, nil
}

// UpdateComplaint writes the mutable fields of c when its version still matches.
func (s *Store) UpdateComplaint(ctx context.Context, c *models.Complaint) error {
	defer s.lock(ctx)()
	stored, ok := s.complaints[c.ComplaintID]
	if !ok || stored.Version != c.Version {
		return lifecycle.ErrConcurrentModification
	}
	c.Version++
	updated := *c
	// identity and intake fields are never rewritten
	updated.ComplaintNumber = stored.ComplaintNumber
	updated.CitizenID = stored.CitizenID
	updated.Title = stored.Title
	updated.Description = stored.Description
	updated.CategoryID = stored.CategoryID
	updated.CreatedTime = stored.CreatedTime
	s.complaints[c.ComplaintID] = updated
	return nil
}

// CreateStatusHistory appends a timeline entry.
func (s *Store) CreateStatusHistory(ctx context.Context, h *models.StatusHistory) error {
	defer s.lock(ctx)()
	h.HistoryID = s.newID()
	s.history = append(s.history, *h)
	return nil
}

// GetStatusHistory returns a complaint timeline, oldest first.
func (s *Store) GetStatusHistory(ctx context.Context, complaintID int64) ([]models.StatusHistory, error) {
	defer s.lock(ctx)()
	var out []models.StatusHistory
	for _, h := range s.history {
		if h.ComplaintID == complaintID {
			out = append(out, h)
		}
	}
	return out, nil
}

func isActive(status models.ComplaintStatus) bool {
	return slices.Contains(models.ActiveStatuses, status)
}

// ListOverdue returns open complaints past their SLA deadline, oldest deadline first.
func (s *Store) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.EscalationCandidate, error) {
	defer s.lock(ctx)()
	var out []models.EscalationCandidate
	for _, c := range s.complaints {
		if !isActive(c.Status) || !c.SLADeadline.Valid || !c.SLADeadline.Time.Before(now) {
			continue
		}
		out = append(out, models.EscalationCandidate{
			ComplaintID:     c.ComplaintID,
			ComplaintNumber: c.ComplaintNumber,
			CitizenID:       c.CitizenID,
			Status:          c.Status,
			Priority:        c.Priority,
			DepartmentID:    c.DepartmentPtr(),
			StaffID:         nullablePtr(c.StaffID.Int64, c.StaffID.Valid),
			SLADeadline:     c.SLADeadline.Time,
			EscalationLevel: c.EscalationLevel,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SLADeadline.Equal(out[j].SLADeadline) {
			return out[i].ComplaintID < out[j].ComplaintID
		}
		return out[i].SLADeadline.Before(out[j].SLADeadline)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AdvanceEscalationLevel raises the level only when it is below level.
func (s *Store) AdvanceEscalationLevel(ctx context.Context, complaintID int64, level int, now time.Time) (bool, error) {
	defer s.lock(ctx)()
	c, ok := s.complaints[complaintID]
	if !ok || c.EscalationLevel >= level || !isActive(c.Status) ||
		!c.SLADeadline.Valid || !c.SLADeadline.Time.Before(now) {
		return false, nil
	}
	c.EscalationLevel = level
	c.UpdatedTime.Time, c.UpdatedTime.Valid = now, true
	c.Version++
	s.complaints[complaintID] = c
	return true, nil
}

// EscalationStats counts open and overdue complaints per escalation level.
func (s *Store) EscalationStats(ctx context.Context, now time.Time) (*models.EscalationStats, error) {
	defer s.lock(ctx)()
	stats := &models.EscalationStats{ByLevel: map[int]int{}, GeneratedAt: now}
	for _, c := range s.complaints {
		if !isActive(c.Status) {
			continue
		}
		stats.ActiveComplaints++
		stats.ByLevel[c.EscalationLevel]++
		if c.SLADeadline.Valid && c.SLADeadline.Time.Before(now) {
			stats.OverdueComplaints++
		}
	}
	return stats, nil
}

// Proofs

// CreateProof stores a resolution proof.
func (s *Store) CreateProof(ctx context.Context, p *models.ResolutionProof) error {
	defer s.lock(ctx)()
	p.ProofID = s.newID()
	s.proofs[p.ProofID] = *p
	return nil
}

// GetProof returns a proof or a not-found error.
func (s *Store) GetProof(ctx context.Context, proofID int64) (*models.ResolutionProof, error) {
	defer s.lock(ctx)()
	p, ok := s.proofs[proofID]
	if !ok {
		return nil, lifecycle.NotFound("resolution proof", proofID)
	}
	return &p, nil
}

// ListProofs returns the proofs of a complaint in submission order.
func (s *Store) ListProofs(ctx context.Context, complaintID int64) ([]models.ResolutionProof, error) {
	defer s.lock(ctx)()
	out := []models.ResolutionProof{}
	for _, p := range s.proofs {
		if p.ComplaintID == complaintID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProofID < out[j].ProofID })
	return out, nil
}

// CountProofs counts the proofs of a complaint.
func (s *Store) CountProofs(ctx context.Context, complaintID int64) (int, error) {
	defer s.lock(ctx)()
	n := 0
	for _, p := range s.proofs {
		if p.ComplaintID == complaintID {
			n++
		}
	}
	return n, nil
}

// MarkVerified records who verified a proof.
func (s *Store) MarkVerified(ctx context.Context, proofID, verifierID int64) error {
	defer s.lock(ctx)()
	p, ok := s.proofs[proofID]
	if !ok {
		return lifecycle.NotFound("resolution proof", proofID)
	}
	p.IsVerified = true
	p.VerifiedBy.Int64, p.VerifiedBy.Valid = verifierID, true
	s.proofs[proofID] = p
	return nil
}

// DeleteProofsByComplaint removes every proof of a complaint and reports how many.
func (s *Store) DeleteProofsByComplaint(ctx context.Context, complaintID int64) (int, error) {
	defer s.lock(ctx)()
	n := 0
	for id, p := range s.proofs {
		if p.ComplaintID == complaintID {
			delete(s.proofs, id)
			n++
		}
	}
	return n, nil
}

// Signoffs

func (s *Store) pendingDispute(complaintID int64) (models.CitizenSignoff, bool) {
	for _, so := range s.signoffs {
		if so.ComplaintID == complaintID && so.IsPendingDispute() {
			return so, true
		}
	}
	return models.CitizenSignoff{}, false
}

// CreateSignoff stores a signoff. A second pending dispute for the same complaint is rejected.
func (s *Store) CreateSignoff(ctx context.Context, so *models.CitizenSignoff) error {
	defer s.lock(ctx)()
	if !so.IsAccepted {
		so.DisputeOutcome = models.DisputePending
		if existing, ok := s.pendingDispute(so.ComplaintID); ok {
			return &lifecycle.DuplicateDisputeError{ComplaintID: so.ComplaintID, PendingSignoffID: existing.SignoffID}
		}
	} else {
		so.DisputeOutcome = models.DisputeNotApplicable
	}
	so.SignoffID = s.newID()
	s.signoffs[so.SignoffID] = *so
	return nil
}

// GetSignoff returns a signoff or a not-found error.
func (s *Store) GetSignoff(ctx context.Context, signoffID int64) (*models.CitizenSignoff, error) {
	defer s.lock(ctx)()
	so, ok := s.signoffs[signoffID]
	if !ok {
		return nil, lifecycle.NotFound("signoff", signoffID)
	}
	return &so, nil
}

// ListSignoffs returns the signoffs of a complaint.
func (s *Store) ListSignoffs(ctx context.Context, complaintID int64) ([]models.CitizenSignoff, error) {
	defer s.lock(ctx)()
	out := []models.CitizenSignoff{}
	for _, so := range s.signoffs {
		if so.ComplaintID == complaintID {
			out = append(out, so)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignoffID < out[j].SignoffID })
	return out, nil
}

// FindPendingDispute returns the undecided dispute of a complaint, or nil.
func (s *Store) FindPendingDispute(ctx context.Context, complaintID int64) (*models.CitizenSignoff, error) {
	defer s.lock(ctx)()
	so, ok := s.pendingDispute(complaintID)
	if !ok {
		return nil, nil
	}
	return &so, nil
}

// HasAcceptedSignoff reports whether the citizen accepted the resolution.
func (s *Store) HasAcceptedSignoff(ctx context.Context, complaintID int64) (bool, error) {
	defer s.lock(ctx)()
	for _, so := range s.signoffs {
		if so.ComplaintID == complaintID && so.IsAccepted {
			return true, nil
		}
	}
	return false, nil
}

// RecordDisputeDecision stores the outcome of a dispute that is still pending.
func (s *Store) RecordDisputeDecision(ctx context.Context, so *models.CitizenSignoff) error {
	defer s.lock(ctx)()
	stored, ok := s.signoffs[so.SignoffID]
	if !ok || !stored.IsPendingDispute() {
		return lifecycle.ErrConcurrentModification
	}
	stored.DisputeOutcome = so.DisputeOutcome
	stored.DisputeReviewedBy = so.DisputeReviewedBy
	stored.DisputeReviewedAt = so.DisputeReviewedAt
	stored.RejectionReason = so.RejectionReason
	s.signoffs[so.SignoffID] = stored
	return nil
}

// ListPendingDisputes returns undecided disputes, optionally for one department.
func (s *Store) ListPendingDisputes(ctx context.Context, departmentID *int64) ([]models.PendingDispute, error) {
	defer s.lock(ctx)()
	out := []models.PendingDispute{}
	for _, so := range s.signoffs {
		if !so.IsPendingDispute() {
			continue
		}
		c, ok := s.complaints[so.ComplaintID]
		if !ok {
			continue
		}
		dept := c.DepartmentPtr()
		if departmentID != nil && !lifecycle.SameDepartment(departmentID, dept) {
			continue
		}
		d := models.PendingDispute{
			SignoffID:       so.SignoffID,
			ComplaintID:     so.ComplaintID,
			ComplaintNumber: c.ComplaintNumber,
			CitizenID:       so.CitizenID,
			DepartmentID:    dept,
			Priority:        c.Priority,
			DisputeReason:   so.DisputeReason.String,
			FiledAt:         so.CreatedAt,
		}
		if so.CounterProofRef.Valid {
			ref := so.CounterProofRef.String
			d.CounterProofRef = &ref
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FiledAt.Equal(out[j].FiledAt) {
			return out[i].SignoffID < out[j].SignoffID
		}
		return out[i].FiledAt.Before(out[j].FiledAt)
	})
	return out, nil
}

// Escalation events

// CreateEscalationEvent appends an escalation event.
func (s *Store) CreateEscalationEvent(ctx context.Context, e *models.EscalationEvent) error {
	defer s.lock(ctx)()
	e.EventID = s.newID()
	s.events = append(s.events, *e)
	return nil
}

// ListEscalationEvents returns the escalation history of a complaint.
func (s *Store) ListEscalationEvents(ctx context.Context, complaintID int64) ([]models.EscalationEvent, error) {
	defer s.lock(ctx)()
	out := []models.EscalationEvent{}
	for _, e := range s.events {
		if e.ComplaintID == complaintID {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountEscalationEventsSince counts escalations at or after since.
func (s *Store) CountEscalationEventsSince(ctx context.Context, since time.Time) (int, error) {
	defer s.lock(ctx)()
	n := 0
	for _, e := range s.events {
		if !e.EscalatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Audit

// CreateAuditLog appends an audit entry.
func (s *Store) CreateAuditLog(ctx context.Context, a *models.AuditLog) error {
	defer s.lock(ctx)()
	a.AuditID = s.newID()
	s.audit = append(s.audit, *a)
	return nil
}

// AuditLogs returns every audit entry recorded for one entity.
func (s *Store) AuditLogs(entityType string, entityID int64) []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLog
	for _, a := range s.audit {
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out
}

// Categories

// GetCategorySLADays returns the SLA days configured for a category.
func (s *Store) GetCategorySLADays(ctx context.Context, categoryID int64) (int, bool, error) {
	defer s.lock(ctx)()
	days, ok := s.categories[categoryID]
	if !ok || days <= 0 {
		return 0, false, nil
	}
	return days, true, nil
}

// Notifications

// CreateNotification queues an outbox row.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	defer s.lock(ctx)()
	n.NotificationID = s.newID()
	s.notifications = append(s.notifications, *n)
	return nil
}

// HasRecentByDedupKey reports whether key was used at or after since.
func (s *Store) HasRecentByDedupKey(ctx context.Context, key string, since time.Time) (bool, error) {
	defer s.lock(ctx)()
	for _, n := range s.notifications {
		if n.DedupKey.Valid && n.DedupKey.String == key && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// GetPendingNotifications returns rows due for delivery at now.
func (s *Store) GetPendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	defer s.lock(ctx)()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.Status != models.NotificationStatusPending && n.Status != models.NotificationStatusRetrying {
			continue
		}
		if n.NextRetryAt.Valid && n.NextRetryAt.Time.After(now) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpdateNotificationStatus records a delivery outcome.
func (s *Store) UpdateNotificationStatus(ctx context.Context, notificationID int64, status models.NotificationStatus, errorMessage *string, at time.Time) error {
	defer s.lock(ctx)()
	i := s.notificationIndex(notificationID)
	if i < 0 {
		return lifecycle.NotFound("notification", notificationID)
	}
	n := &s.notifications[i]
	n.Status = status
	switch status {
	case models.NotificationStatusSent:
		n.SentAt.Time, n.SentAt.Valid = at, true
		n.ErrorMessage.Valid = false
	case models.NotificationStatusFailed:
		if errorMessage != nil {
			n.ErrorMessage.String, n.ErrorMessage.Valid = *errorMessage, true
		}
	}
	return nil
}

// ScheduleRetry bumps the retry count and sets the next attempt.
func (s *Store) ScheduleRetry(ctx context.Context, notificationID int64, nextRetryAt time.Time, errorMessage string) error {
	defer s.lock(ctx)()
	i := s.notificationIndex(notificationID)
	if i < 0 {
		return lifecycle.NotFound("notification", notificationID)
	}
	n := &s.notifications[i]
	n.Status = models.NotificationStatusRetrying
	n.RetryCount++
	n.NextRetryAt.Time, n.NextRetryAt.Valid = nextRetryAt, true
	n.ErrorMessage.String, n.ErrorMessage.Valid = errorMessage, true
	return nil
}

func (s *Store) notificationIndex(id int64) int {
	for i := range s.notifications {
		if s.notifications[i].NotificationID == id {
			return i
		}
	}
	return -1
}

// Notifications returns every outbox row for a complaint.
func (s *Store) Notifications(complaintID int64) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.ComplaintID == complaintID {
			out = append(out, n)
		}
	}
	return out
}

// Rewards

// AwardPoints credits a reward once per citizen, complaint and reason. It reports whether the entry was new.
func (s *Store) AwardPoints(ctx context.Context, e *models.RewardEntry) (bool, error) {
	defer s.lock(ctx)()
	for _, r := range s.rewards {
		if r.CitizenID == e.CitizenID && r.ComplaintID == e.ComplaintID && r.Reason == e.Reason {
			return false, nil
		}
	}
	e.RewardID = s.newID()
	s.rewards = append(s.rewards, *e)
	return true, nil
}

// TotalPoints sums a citizen's points.
func (s *Store) TotalPoints(ctx context.Context, citizenID int64) (int, error) {
	defer s.lock(ctx)()
	total := 0
	for _, r := range s.rewards {
		if r.CitizenID == citizenID {
			total += r.Points
		}
	}
	return total, nil
}

func nullablePtr(v int64, valid bool) *int64 {
	if !valid {
		return nil
	}
	return &v
}
