package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

type TemplateProvider interface {
	// Resolve returns exactly the requested version, never a newer one.
	Resolve(ctx context.Context, templateId int, version int) (*models.FormTemplateVersion, error)
	// Latest is used only when a submission is created; the result is frozen on the submission.
	Latest(ctx context.Context, templateId int) (*models.FormTemplateVersion, error)
}

// TemplateRegistry serves template versions from the database with a Redis read-through cache.
// Versions are immutable once published, so cached entries never need invalidation.
type TemplateRegistry struct {
	db       *gorm.DB
	cacheTTL time.Duration
}

func NewTemplateRegistry(db *gorm.DB) *TemplateRegistry {
	return &TemplateRegistry{db: db, cacheTTL: 24 * time.Hour}
}

func templateVersionCacheKey(companyId string, templateId int, version int) string {
	return fmt.Sprintf("FormTemplateVersion:%s:%d:%d", companyId, templateId, version)
}

func (r *TemplateRegistry) Resolve(ctx context.Context, templateId int, version int) (*models.FormTemplateVersion, error) {
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	key := templateVersionCacheKey(companyId, templateId, version)
	logger := config.GetLogger()

	var cached models.FormTemplateVersion
	if ok, err := config.GetRedisObject(ctx, key, &cached); err != nil {
		config.LogError(logger, "TemplateRegistry", "Resolve", "read cache", key, err)
	} else if ok && (companyId == "" || cached.CompanyId == companyId) {
		return &cached, nil
	}

	v, err := models.GetTemplateVersion(ctx, r.db, templateId, version)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(ctx, key, v, r.cacheTTL); err != nil {
		config.LogError(logger, "TemplateRegistry", "Resolve", "write cache", key, err)
	}
	return v, nil
}

func (r *TemplateRegistry) Latest(ctx context.Context, templateId int) (*models.FormTemplateVersion, error) {
	return models.GetLatestTemplateVersion(ctx, r.db, templateId)
}

// RequiredSigners returns the signer slots of an exact version ordered by signing order.
func (r *TemplateRegistry) RequiredSigners(ctx context.Context, templateId int, version int) ([]models.RequiredSigner, error) {
	v, err := r.Resolve(ctx, templateId, version)
	if err != nil {
		return nil, err
	}
	return v.Signers(), nil
}

func (r *TemplateRegistry) Publish(ctx context.Context, input *models.NewTemplateVersion) (*models.FormTemplateVersion, error) {
	return models.PublishTemplateVersion(ctx, r.db, input)
}
