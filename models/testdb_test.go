package models_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory sqlite database with the production gorm config,
// the tenant guard and the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Use(config.NewTenantGuardPlugin()); err != nil {
		t.Fatalf("tenant guard: %v", err)
	}
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testContext(companyId string, userId int, role string) context.Context {
	ctx := context.Background()
	ctx = utils.SetCompanyIdInContext(ctx, companyId)
	ctx = utils.SetUserIdInContext(ctx, userId)
	ctx = utils.SetUserNameInContext(ctx, "user")
	ctx = utils.SetUserRoleInContext(ctx, role)
	ctx = utils.SetCorrelationIdInContext(ctx, "test-correlation")
	return ctx
}

func checklistTemplateInput() *models.NewTemplateVersion {
	return &models.NewTemplateVersion{
		TemplateCode: "ism-chk-01",
		Name:         "Pre-departure checklist",
		Recurrence:   models.RecurrencePerVoyage,
		FormSchema: models.FormSchema{Fields: []models.FieldSpec{
			{Key: "port", Label: "Port", Kind: models.FieldKindText, Required: true},
			{Key: "crew_count", Label: "Crew on board", Kind: models.FieldKindNumber, Required: true,
				Number: &models.NumberField{Integer: true}},
		}},
		RequiredSigners: []models.RequiredSigner{
			{Role: "CHIEF_OFFICER", Order: 2, IsMandatory: true},
			{Role: "MASTER", Order: 1, IsMandatory: true},
		},
	}
}
