package models

import (
	"errors"
	"time"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

// SubmissionStatusHistory is the audit trail of a submission: one row per transition.
type SubmissionStatusHistory struct {
	ID            int              `gorm:"primary_key" json:"id"`
	CompanyId     string           `gorm:"size:64;index;not null" json:"company_id"`
	SubmissionId  int              `gorm:"index;not null" json:"submission_id"`
	Action        string           `gorm:"size:30;not null" json:"action"`
	FromStatus    SubmissionStatus `gorm:"size:30;not null" json:"from_status"`
	ToStatus      SubmissionStatus `gorm:"size:30;not null" json:"to_status"`
	Reason        string           `gorm:"type:text" json:"reason"`
	ContentHash   string           `gorm:"size:80" json:"content_hash"`
	UserId        int              `gorm:"index;not null" json:"user_id"`
	UserName      string           `gorm:"size:100" json:"user_name"`
	CorrelationId string           `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type NewStatusHistory struct {
	SubmissionId int
	Action       string
	FromStatus   SubmissionStatus
	ToStatus     SubmissionStatus
	Reason       string
	ContentHash  string
}

// CreateStatusHistory writes the audit row inside tx. Company and user come from the
// transaction's context, like every other write on behalf of a request.
func CreateStatusHistory(tx *gorm.DB, input NewStatusHistory) error {
	ctx := tx.Statement.Context
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	history := SubmissionStatusHistory{
		CompanyId:     companyId,
		SubmissionId:  input.SubmissionId,
		Action:        input.Action,
		FromStatus:    input.FromStatus,
		ToStatus:      input.ToStatus,
		Reason:        input.Reason,
		ContentHash:   input.ContentHash,
		UserId:        userId,
		UserName:      userName,
		CorrelationId: correlationId,
	}
	return tx.Create(&history).Error
}

func ListStatusHistory(tx *gorm.DB, submissionId int) ([]SubmissionStatusHistory, error) {
	var out []SubmissionStatusHistory
	err := tx.Where("submission_id = ?", submissionId).Order("id ASC").Find(&out).Error
	return out, err
}
