package models

import (
	"context"

	"gorm.io/gorm"
)

// ListSubmissionNotifications returns the outbox rows of a submission, newest first.
func ListSubmissionNotifications(ctx context.Context, db *gorm.DB, submissionId int) ([]NotificationOutbox, error) {
	var out []NotificationOutbox
	err := db.WithContext(ctx).Where("submission_id = ?", submissionId).Order("id DESC").Find(&out).Error
	return out, err
}

// CountNotificationsByStatus feeds the ops endpoint with a publish_status histogram.
func CountNotificationsByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		PublishStatus string
		Total         int64
	}
	err := db.WithContext(ctx).Model(&NotificationOutbox{}).
		Select("publish_status, COUNT(*) AS total").
		Group("publish_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.PublishStatus] = r.Total
	}
	return out, nil
}
