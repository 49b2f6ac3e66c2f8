package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Amendment records a post-signature change. Rows are never updated.
type Amendment struct {
	ID                  int                        `gorm:"primary_key" json:"id"`
	CompanyId           string                     `gorm:"size:64;not null;index" json:"company_id"`
	SubmissionId        int                        `gorm:"not null;uniqueIndex:idx_amendment_number,priority:1" json:"submission_id"`
	AmendmentNumber     int                        `gorm:"not null;uniqueIndex:idx_amendment_number,priority:2" json:"amendment_number"`
	Reason              string                     `gorm:"type:text;not null" json:"reason"`
	PreviousData        datatypes.JSONMap          `json:"previous_data"`
	NewData             datatypes.JSONMap          `json:"new_data"`
	ChangedFields       datatypes.JSONSlice[string] `json:"changed_fields"`
	RequiresReSignature bool                       `gorm:"not null" json:"requires_re_signature"`
	PreviousHash        string                     `gorm:"size:80;not null" json:"previous_hash"`
	NewHash             string                     `gorm:"size:80;not null" json:"new_hash"`
	ApprovedById        int                        `json:"approved_by_id"`
	ApprovedBy          string                     `gorm:"size:100" json:"approved_by"`
	ApprovalReference   string                     `gorm:"size:255" json:"approval_reference"`
	CreatedBy           int                        `gorm:"not null" json:"created_by"`
	CreatedByName       string                     `gorm:"size:100" json:"created_by_name"`
	CreatedAt           time.Time                  `gorm:"autoCreateTime" json:"created_at"`
}

// NextAmendmentNumber returns max+1 for the submission, 1 when it has none.
func NextAmendmentNumber(tx *gorm.DB, submissionId int) (int, error) {
	var max int
	err := tx.Model(&Amendment{}).
		Where("submission_id = ?", submissionId).
		Select("COALESCE(MAX(amendment_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func ListAmendments(tx *gorm.DB, submissionId int) ([]Amendment, error) {
	var out []Amendment
	err := tx.Where("submission_id = ?", submissionId).Order("amendment_number ASC").Find(&out).Error
	return out, err
}
