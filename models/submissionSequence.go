package models

import (
	"fmt"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

// SubmissionSequence is the per company, template and year counter behind submission numbers.
type SubmissionSequence struct {
	ID         int    `gorm:"primary_key" json:"id"`
	CompanyId  string `gorm:"size:64;not null;uniqueIndex:idx_submission_sequence,priority:1" json:"company_id"`
	TemplateId int    `gorm:"not null;uniqueIndex:idx_submission_sequence,priority:2" json:"template_id"`
	Year       int    `gorm:"not null;uniqueIndex:idx_submission_sequence,priority:3" json:"year"`
	LastValue  int    `gorm:"not null" json:"last_value"`
}

// NextSubmissionSequence allocates the next value inside the caller's transaction.
// The increment is a single UPDATE so concurrent callers serialize on the row lock;
// the first allocation of a year inserts the row and relies on the unique index.
func NextSubmissionSequence(tx *gorm.DB, companyId string, templateId int, year int) (int, error) {
	for attempt := 0; attempt < 3; attempt++ {
		res := tx.Model(&SubmissionSequence{}).
			Where("company_id = ? AND template_id = ? AND year = ?", companyId, templateId, year).
			UpdateColumn("last_value", gorm.Expr("last_value + 1"))
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			var seq SubmissionSequence
			if err := tx.Where("company_id = ? AND template_id = ? AND year = ?", companyId, templateId, year).
				First(&seq).Error; err != nil {
				return 0, err
			}
			return seq.LastValue, nil
		}

		seq := SubmissionSequence{CompanyId: companyId, TemplateId: templateId, Year: year, LastValue: 1}
		err := tx.Create(&seq).Error
		if err == nil {
			return 1, nil
		}
		if !utils.IsDuplicateKeyErr(err) {
			return 0, err
		}
		// another transaction inserted the row first; increment it instead
	}
	return 0, fmt.Errorf("could not allocate submission sequence for template %d year %d", templateId, year)
}
