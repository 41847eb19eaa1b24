package service

import (
	"context"
	"time"

	"civicflow/models"
)

// Rewarder credits citizens for closed complaints.
type Rewarder interface {
	AwardForClosure(ctx context.Context, c *models.Complaint) error
}

// effectSender hands notifications to the side-effect channel. Each notification is
// its own job so one failing recipient does not hold back the others.
type effectSender struct {
	effects  SideEffects
	notifier Notifier
}

func (e effectSender) notify(req *models.NotificationRequest) {
	if e.effects == nil || e.notifier == nil {
		return
	}
	e.effects.Dispatch("notify:"+string(req.Kind), func(ctx context.Context) error {
		return e.notifier.Send(ctx, req)
	})
}

func (e effectSender) notifyOnce(req *models.NotificationRequest, key string, window time.Duration) {
	if e.effects == nil || e.notifier == nil {
		return
	}
	e.effects.Dispatch("notify:"+string(req.Kind), func(ctx context.Context) error {
		_, err := e.notifier.SendWithDeduplication(ctx, req, key, window)
		return err
	})
}

func citizenNotice(c *models.Complaint, kind models.NotificationKind, subject, body string) *models.NotificationRequest {
	citizen := c.CitizenID
	return &models.NotificationRequest{
		ComplaintID:   c.ComplaintID,
		Kind:          kind,
		RecipientID:   &citizen,
		RecipientRole: models.RoleCitizen,
		Subject:       subject,
		Body:          body,
	}
}

// staffNotice addresses the assigned staff member, or the department head when
// nobody is assigned yet.
func staffNotice(c *models.Complaint, kind models.NotificationKind, subject, body string) *models.NotificationRequest {
	req := &models.NotificationRequest{
		ComplaintID:   c.ComplaintID,
		Kind:          kind,
		RecipientRole: models.RoleDeptHead,
		Subject:       subject,
		Body:          body,
	}
	if c.StaffID.Valid {
		staff := c.StaffID.Int64
		req.RecipientID = &staff
		req.RecipientRole = models.RoleStaff
	}
	return req
}
