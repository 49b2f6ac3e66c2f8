package models

import (
	"context"
	"errors"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

// ReplayDeadNotifications puts DEAD outbox rows of the company back to PENDING so the
// dispatcher retries them from attempt zero. submissionId 0 replays every DEAD row.
func ReplayDeadNotifications(ctx context.Context, db *gorm.DB, submissionId int) (int64, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return 0, errors.New("company id is required")
	}

	q := db.WithContext(ctx).
		Model(&NotificationOutbox{}).
		Where("company_id = ? AND publish_status = ?", companyId, OutboxPublishStatusDead)
	if submissionId > 0 {
		q = q.Where("submission_id = ?", submissionId)
	}
	res := q.Updates(map[string]interface{}{
		"publish_status":   OutboxPublishStatusPending,
		"publish_attempts": 0,
		"next_attempt_at":  nil,
		"locked_at":        nil,
		"locked_by":        nil,
	})
	return res.RowsAffected, res.Error
}
