package workflow

import (
	"context"

	"github.com/mmdatafocus/compliance_backend/models"
	"gorm.io/gorm"
)

// Notification is what the engine asks the notification collaborator to deliver.
type Notification struct {
	CompanyId        string
	Kind             string
	SubmissionId     int
	SubmissionNumber string
	RecipientRoles   []string
	RecipientUserId  int
	Message          string
}

// NotificationSink is invoked after a transition has committed. Errors are logged by the
// engine and never fail the transition.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// OutboxNotifier writes notifications to the outbox table; OutboxDispatcher publishes them.
type OutboxNotifier struct {
	DB *gorm.DB
}

func NewOutboxNotifier(db *gorm.DB) *OutboxNotifier {
	return &OutboxNotifier{DB: db}
}

func (o *OutboxNotifier) Notify(ctx context.Context, n Notification) error {
	_, err := models.EnqueueNotification(ctx, o.DB, n.CompanyId, models.NewNotification{
		Kind:             n.Kind,
		SubmissionId:     n.SubmissionId,
		SubmissionNumber: n.SubmissionNumber,
		RecipientRoles:   n.RecipientRoles,
		RecipientUserId:  n.RecipientUserId,
		Message:          n.Message,
	})
	return err
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }
