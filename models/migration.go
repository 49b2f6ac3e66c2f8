package models

import "gorm.io/gorm"

// AllModels lists every persisted model, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&FormTemplate{}, &FormTemplateVersion{},
		&SubmissionSequence{}, &Submission{}, &SubmissionAttachment{},
		&Signature{}, &Amendment{}, &SubmissionStatusHistory{},
		&SignerCredential{}, &NotificationOutbox{}, &IdempotencyKey{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
