package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
)

// IdempotencyKey makes client retries of a create request return the first result.
// Unique constraint: (company_id, handler_name, request_key).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	CompanyId   string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"company_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	RequestKey  string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"request_key"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ResultId    int               `json:"result_id"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
