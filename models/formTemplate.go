package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrTemplateVersionInUse = errors.New("template version is referenced by submissions and cannot change")

// ErrInvalidTemplate wraps structural problems found while publishing a template version.
var ErrInvalidTemplate = errors.New("invalid template")

// FormTemplate is the stable identity of a template (one per company and code).
// Its content lives in insert-only FormTemplateVersion rows.
type FormTemplate struct {
	ID            int        `gorm:"primary_key" json:"id"`
	CompanyId     string     `gorm:"size:64;not null;index;uniqueIndex:idx_form_template_code,priority:1" json:"company_id"`
	TemplateCode  string     `gorm:"size:50;not null;uniqueIndex:idx_form_template_code,priority:2" json:"template_code"`
	Name          string     `gorm:"size:255;not null" json:"name"`
	Recurrence    Recurrence `gorm:"size:20;not null" json:"recurrence"`
	LatestVersion int        `gorm:"not null" json:"latest_version"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type RequiredSigner struct {
	Role        string `json:"role" validate:"required,max=100"`
	Order       int    `json:"order" validate:"gte=1"`
	IsMandatory bool   `json:"is_mandatory"`
}

type FormTemplateVersion struct {
	ID              int                                `gorm:"primary_key" json:"id"`
	CompanyId       string                             `gorm:"size:64;not null;index" json:"company_id"`
	TemplateId      int                                `gorm:"not null;uniqueIndex:idx_form_template_version,priority:1" json:"template_id"`
	Version         int                                `gorm:"not null;uniqueIndex:idx_form_template_version,priority:2" json:"version"`
	TemplateCode    string                             `gorm:"size:50;not null" json:"template_code"`
	Name            string                             `gorm:"size:255;not null" json:"name"`
	Recurrence      Recurrence                         `gorm:"size:20;not null" json:"recurrence"`
	FormSchema      datatypes.JSONType[FormSchema]     `json:"form_schema"`
	RequiredSigners datatypes.JSONSlice[RequiredSigner] `json:"required_signers"`
	PublishedBy     int                                `json:"published_by"`
	CreatedAt       time.Time                          `gorm:"autoCreateTime" json:"created_at"`
}

func (v FormTemplateVersion) Schema() FormSchema {
	return v.FormSchema.Data()
}

// Signers returns the required signers ordered by signing order.
func (v FormTemplateVersion) Signers() []RequiredSigner {
	return SortSigners(v.RequiredSigners)
}

func SortSigners(signers []RequiredSigner) []RequiredSigner {
	out := make([]RequiredSigner, len(signers))
	copy(out, signers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func MandatoryCount(signers []RequiredSigner) int {
	n := 0
	for _, s := range signers {
		if s.IsMandatory {
			n++
		}
	}
	return n
}

// SignerForOrder finds the slot definition for a signing order.
func SignerForOrder(signers []RequiredSigner, order int) (RequiredSigner, bool) {
	for _, s := range signers {
		if s.Order == order {
			return s, true
		}
	}
	return RequiredSigner{}, false
}

func (v *FormTemplateVersion) BeforeUpdate(tx *gorm.DB) error {
	return v.guardReferenced(tx)
}

func (v *FormTemplateVersion) BeforeDelete(tx *gorm.DB) error {
	return v.guardReferenced(tx)
}

func (v *FormTemplateVersion) guardReferenced(tx *gorm.DB) error {
	if v.ID == 0 {
		return errors.New("template versions can only be changed by id")
	}
	var current FormTemplateVersion
	if err := tx.Session(&gorm.Session{NewDB: true}).Select("template_id", "version").First(&current, v.ID).Error; err != nil {
		return err
	}
	var count int64
	if err := tx.Session(&gorm.Session{NewDB: true}).Model(&Submission{}).
		Where("template_id = ? AND template_version = ?", current.TemplateId, current.Version).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrTemplateVersionInUse
	}
	return nil
}

type NewTemplateVersion struct {
	TemplateCode    string           `json:"template_code" validate:"required,max=50"`
	Name            string           `json:"name" validate:"required,max=255"`
	Recurrence      Recurrence       `json:"recurrence" validate:"omitempty,oneof=NONE PER_VOYAGE DAILY WEEKLY MONTHLY QUARTERLY ANNUAL"`
	FormSchema      FormSchema       `json:"form_schema"`
	RequiredSigners []RequiredSigner `json:"required_signers" validate:"required,min=1,dive"`
}

var templateValidate = validator.New()

func (input *NewTemplateVersion) validate() error {
	input.TemplateCode = strings.ToUpper(strings.TrimSpace(input.TemplateCode))
	if input.Recurrence == "" {
		input.Recurrence = RecurrenceNone
	}
	if err := templateValidate.Struct(input); err != nil {
		return err
	}
	if err := input.FormSchema.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	orders := make(map[int]bool, len(input.RequiredSigners))
	for _, s := range input.RequiredSigners {
		if orders[s.Order] {
			return fmt.Errorf("%w: duplicate signer order %d", ErrInvalidTemplate, s.Order)
		}
		orders[s.Order] = true
	}
	if MandatoryCount(input.RequiredSigners) == 0 {
		return fmt.Errorf("%w: at least one mandatory signer is required", ErrInvalidTemplate)
	}
	return nil
}

// PublishTemplateVersion stores input as version max+1 of the company's template with the
// same code, creating the template on first publish. Existing versions are never touched.
func PublishTemplateVersion(ctx context.Context, db *gorm.DB, input *NewTemplateVersion) (*FormTemplateVersion, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := input.validate(); err != nil {
		return nil, err
	}

	var version FormTemplateVersion
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var template FormTemplate
			res := tx.Where("company_id = ? AND template_code = ?", companyId, input.TemplateCode).Limit(1).Find(&template)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				template = FormTemplate{
					CompanyId:    companyId,
					TemplateCode: input.TemplateCode,
					Name:         input.Name,
					Recurrence:   input.Recurrence,
				}
				if err := tx.Create(&template).Error; err != nil {
					return err
				}
			}

			next := template.LatestVersion + 1
			version = FormTemplateVersion{
				CompanyId:       companyId,
				TemplateId:      template.ID,
				Version:         next,
				TemplateCode:    template.TemplateCode,
				Name:            input.Name,
				Recurrence:      input.Recurrence,
				FormSchema:      datatypes.NewJSONType(input.FormSchema),
				RequiredSigners: datatypes.JSONSlice[RequiredSigner](SortSigners(input.RequiredSigners)),
				PublishedBy:     userId,
			}
			if err := tx.Create(&version).Error; err != nil {
				return err
			}
			// CAS on latest_version so concurrent publishers cannot both claim the same number
			res = tx.Model(&FormTemplate{}).
				Where("id = ? AND latest_version = ?", template.ID, template.LatestVersion).
				Updates(map[string]interface{}{
					"latest_version": next,
					"name":           input.Name,
					"recurrence":     input.Recurrence,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrDuplicatedKey
			}
			return nil
		})
		if err == nil || !utils.IsDuplicateKeyErr(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// GetTemplateVersion loads an exact version. It never falls back to the latest one.
func GetTemplateVersion(ctx context.Context, db *gorm.DB, templateId int, version int) (*FormTemplateVersion, error) {
	var v FormTemplateVersion
	err := db.WithContext(ctx).Where("template_id = ? AND version = ?", templateId, version).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &v, nil
}

func GetLatestTemplateVersion(ctx context.Context, db *gorm.DB, templateId int) (*FormTemplateVersion, error) {
	var template FormTemplate
	if err := db.WithContext(ctx).First(&template, templateId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if template.LatestVersion == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return GetTemplateVersion(ctx, db, template.ID, template.LatestVersion)
}
