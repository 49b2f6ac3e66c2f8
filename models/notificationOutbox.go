package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationOutbox is the transactional outbox for notifications. Rows are written by the
// workflow and published to Pub/Sub by the outbox dispatcher.
type NotificationOutbox struct {
	ID               int                         `gorm:"primary_key;index:idx_notification_dispatch,priority:3" json:"id"`
	CompanyId        string                      `gorm:"size:64;not null;index" json:"company_id"`
	Kind             string                      `gorm:"size:40;not null" json:"kind"`
	SubmissionId     int                         `gorm:"not null;index" json:"submission_id"`
	SubmissionNumber string                      `gorm:"size:100" json:"submission_number"`
	RecipientRoles   datatypes.JSONSlice[string] `json:"recipient_roles"`
	RecipientUserId  int                         `json:"recipient_user_id"`
	Message          string                      `gorm:"type:text" json:"message"`
	PublishStatus    string                      `gorm:"size:20;not null;index;index:idx_notification_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time                  `json:"published_at"`
	PubSubMessageId  *string                     `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                         `gorm:"not null" json:"publish_attempts"`
	NextAttemptAt    *time.Time                  `gorm:"index;index:idx_notification_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time                  `gorm:"index" json:"locked_at"`
	LockedBy         *string                     `gorm:"size:100" json:"locked_by"`
	LastPublishError *string                     `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string                      `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNotification struct {
	Kind             string
	SubmissionId     int
	SubmissionNumber string
	RecipientRoles   []string
	RecipientUserId  int
	Message          string
}

// EnqueueNotification writes the outbox row; it does not publish.
func EnqueueNotification(ctx context.Context, db *gorm.DB, companyId string, n NewNotification) (*NotificationOutbox, error) {
	record := NotificationOutbox{
		CompanyId:        companyId,
		Kind:             n.Kind,
		SubmissionId:     n.SubmissionId,
		SubmissionNumber: n.SubmissionNumber,
		RecipientRoles:   datatypes.JSONSlice[string](n.RecipientRoles),
		RecipientUserId:  n.RecipientUserId,
		Message:          n.Message,
		PublishStatus:    OutboxPublishStatusPending,
		CorrelationId:    correlationIdFromContextOrNew(ctx),
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func (r NotificationOutbox) ToMessage() config.NotificationMessage {
	return config.NotificationMessage{
		ID:               r.ID,
		CompanyId:        r.CompanyId,
		Kind:             r.Kind,
		SubmissionId:     r.SubmissionId,
		SubmissionNumber: r.SubmissionNumber,
		RecipientRoles:   []string(r.RecipientRoles),
		RecipientUserId:  r.RecipientUserId,
		Message:          r.Message,
		CorrelationId:    r.CorrelationId,
		CreatedAt:        r.CreatedAt,
	}
}
