package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/compliance_backend/models"
	"gorm.io/gorm"
)

type PinVerifier interface {
	VerifyPin(ctx context.Context, signer Identity, pin string) (bool, error)
}

// BcryptPinVerifier compares against the signer's stored SignerCredential.
type BcryptPinVerifier struct {
	DB *gorm.DB
}

func (v BcryptPinVerifier) VerifyPin(ctx context.Context, signer Identity, pin string) (bool, error) {
	if pin == "" {
		return false, nil
	}
	ok, err := models.CheckSignerPin(ctx, v.DB, signer.CompanyId, signer.UserId, pin)
	if errors.Is(err, models.ErrSignerPinNotSet) {
		return false, nil
	}
	return ok, err
}
