package models

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

// SubmissionAttachment is metadata for a file kept in external object storage.
type SubmissionAttachment struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    string    `gorm:"size:64;not null;index" json:"company_id"`
	SubmissionId int       `gorm:"not null;index" json:"submission_id"`
	FieldKey     string    `gorm:"size:64" json:"field_key"`
	FileName     string    `gorm:"size:255;not null" json:"file_name"`
	ObjectKey    string    `gorm:"size:512;not null" json:"object_key"`
	MimeType     string    `gorm:"size:100;not null" json:"mime_type"`
	SizeBytes    int64     `gorm:"not null" json:"size_bytes"`
	UploadedBy   int       `gorm:"not null" json:"uploaded_by"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewAttachment struct {
	FieldKey  string `json:"field_key" validate:"omitempty,max=64"`
	FileName  string `json:"file_name" validate:"required,max=255"`
	ObjectKey string `json:"object_key" validate:"required,max=512"`
	MimeType  string `json:"mime_type" validate:"required,max=100"`
	SizeBytes int64  `json:"size_bytes" validate:"gt=0"`
}

var allowedAttachmentMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/heic":      true,
	"text/plain":      true,
	"text/csv":        true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

func IsAllowedAttachmentMimeType(mimeType string) bool {
	return allowedAttachmentMimeTypes[strings.ToLower(strings.TrimSpace(mimeType))]
}

// AttachmentObjectKey is where an upload for a submission is expected to live in the bucket.
func AttachmentObjectKey(companyId string, submissionId int, fileName string) string {
	return path.Join("submissions", companyId, strconv.Itoa(submissionId), path.Base(fileName))
}

func CreateAttachment(tx *gorm.DB, submissionId int, input *NewAttachment) (*SubmissionAttachment, error) {
	ctx := tx.Statement.Context
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	a := SubmissionAttachment{
		CompanyId:    companyId,
		SubmissionId: submissionId,
		FieldKey:     input.FieldKey,
		FileName:     input.FileName,
		ObjectKey:    input.ObjectKey,
		MimeType:     strings.ToLower(strings.TrimSpace(input.MimeType)),
		SizeBytes:    input.SizeBytes,
		UploadedBy:   userId,
	}
	if err := tx.Create(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func ListAttachments(ctx context.Context, db *gorm.DB, submissionId int) ([]SubmissionAttachment, error) {
	var out []SubmissionAttachment
	err := db.WithContext(ctx).Where("submission_id = ?", submissionId).Order("id ASC").Find(&out).Error
	return out, err
}
