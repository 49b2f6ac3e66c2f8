package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Signature struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       string          `gorm:"size:64;not null;index" json:"company_id"`
	SubmissionId    int             `gorm:"not null;index" json:"submission_id"`
	Order           int             `gorm:"column:signer_order;not null" json:"order"`
	SignerId        int             `gorm:"not null;index" json:"signer_id"`
	SignerName      string          `gorm:"size:100" json:"signer_name"`
	Role            string          `gorm:"size:100;not null" json:"role"`
	Method          SignatureMethod `gorm:"size:10" json:"method"`
	Action          SignatureAction `gorm:"size:20;not null" json:"action"`
	RejectionReason *string         `gorm:"type:text" json:"rejection_reason,omitempty"`
	DelegatedTo     *int            `json:"delegated_to,omitempty"`
	SigningRound    int             `gorm:"not null" json:"signing_round"`
	// ContentHash is the digest of the form data the signer saw.
	ContentHash string `gorm:"size:80" json:"content_hash"`
	// SlotKey is set only while a SIGNED row is accepted; the unique index makes a
	// second accepted signature for the same slot impossible.
	SlotKey      *string    `gorm:"size:64;uniqueIndex" json:"-"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	SignedAt     time.Time  `gorm:"not null" json:"signed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func SignatureSlotKey(submissionId int, order int) string {
	return fmt.Sprintf("%d:%d", submissionId, order)
}

// IsAccepted reports a signature that still counts: not superseded by a later round.
func (s Signature) IsAccepted() bool {
	return s.SupersededAt == nil
}

func ListSignatures(tx *gorm.DB, submissionId int) ([]Signature, error) {
	var out []Signature
	err := tx.Where("submission_id = ?", submissionId).Order("signer_order ASC, id ASC").Find(&out).Error
	return out, err
}

func ListAcceptedSignatures(tx *gorm.DB, submissionId int) ([]Signature, error) {
	var out []Signature
	err := tx.Where("submission_id = ? AND superseded_at IS NULL", submissionId).Order("signer_order ASC, id ASC").Find(&out).Error
	return out, err
}

// SupersedeSignatures retires every accepted signature of a submission and frees their slots.
func SupersedeSignatures(tx *gorm.DB, submissionId int, at time.Time) (int64, error) {
	res := tx.Model(&Signature{}).
		Where("submission_id = ? AND superseded_at IS NULL", submissionId).
		Updates(map[string]interface{}{
			"superseded_at": at,
			"slot_key":      nil,
		})
	return res.RowsAffected, res.Error
}
