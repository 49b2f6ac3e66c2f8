package workflow

import (
	"errors"

	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("a request with this idempotency key is still in progress")

// BeginIdempotency inserts STARTED inside tx. When a previous request with the same key
// already succeeded it returns that request's result id so the caller can skip the work.
func BeginIdempotency(tx *gorm.DB, companyId, handlerName, requestKey string) (resultId int, err error) {
	key := models.IdempotencyKey{
		CompanyId:   companyId,
		HandlerName: handlerName,
		RequestKey:  requestKey,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return 0, nil
	} else if !utils.IsDuplicateKeyErr(err) {
		return 0, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("company_id = ? AND handler_name = ? AND request_key = ?", companyId, handlerName, requestKey).
		First(&existing).Error; err != nil {
		return 0, err
	}
	if existing.Status == models.IdempotencyStatusSucceeded && existing.ResultId > 0 {
		return existing.ResultId, nil
	}
	return 0, ErrIdempotencyInProgress
}

func MarkIdempotencySucceeded(tx *gorm.DB, companyId, handlerName, requestKey string, resultId int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("company_id = ? AND handler_name = ? AND request_key = ?", companyId, handlerName, requestKey).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "result_id": resultId}).Error
}
