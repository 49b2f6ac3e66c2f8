package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSignerPinNotSet = errors.New("signer has no signing pin")

// SignerCredential holds the bcrypt hash of a user's signing PIN.
type SignerCredential struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"size:64;not null;uniqueIndex:idx_signer_credential,priority:1" json:"company_id"`
	UserId    int       `gorm:"not null;uniqueIndex:idx_signer_credential,priority:2" json:"user_id"`
	PinHash   string    `gorm:"size:100;not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetSignerPin stores (or replaces) the PIN hash for a user of the company.
func SetSignerPin(ctx context.Context, db *gorm.DB, companyId string, userId int, pin string) error {
	if len(pin) < 4 {
		return errors.New("pin must have at least 4 characters")
	}
	hash, err := utils.HashPin(pin)
	if err != nil {
		return err
	}
	cred := SignerCredential{CompanyId: companyId, UserId: userId, PinHash: string(hash)}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pin_hash", "updated_at"}),
	}).Create(&cred).Error
}

// CheckSignerPin compares pin with the stored hash. A missing credential is ErrSignerPinNotSet.
func CheckSignerPin(ctx context.Context, db *gorm.DB, companyId string, userId int, pin string) (bool, error) {
	var cred SignerCredential
	err := db.WithContext(ctx).Where("company_id = ? AND user_id = ?", companyId, userId).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrSignerPinNotSet
		}
		return false, err
	}
	return utils.ComparePin(cred.PinHash, pin) == nil, nil
}
