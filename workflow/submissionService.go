package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const createSubmissionHandler = "create_submission"

// ServiceDeps are the collaborators of SubmissionService. Nil fields get defaults:
// a TemplateRegistry, the request-context identity, no notifications, no storage check.
type ServiceDeps struct {
	Templates   TemplateProvider
	Identity    IdentityProvider
	Notifier    NotificationSink
	Attachments AttachmentVerifier
	Pins        PinVerifier
	Tracer      trace.Tracer
}

// SubmissionService is the entry point for every submission operation. It holds no
// business state; each call works on its own transaction.
type SubmissionService struct {
	db        *gorm.DB
	engine    *Engine
	templates TemplateProvider
	identity  IdentityProvider
	tracer    trace.Tracer
	validate  *validator.Validate
}

func NewSubmissionService(db *gorm.DB, deps ServiceDeps) *SubmissionService {
	if deps.Templates == nil {
		deps.Templates = NewTemplateRegistry(db)
	}
	if deps.Identity == nil {
		deps.Identity = ContextIdentityProvider{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("compliance_backend/workflow")
	}
	opts := []EngineOption{}
	if deps.Notifier != nil {
		opts = append(opts, WithNotifier(deps.Notifier))
	}
	if deps.Attachments != nil {
		opts = append(opts, WithAttachmentVerifier(deps.Attachments))
	}
	if deps.Pins != nil {
		opts = append(opts, WithPinVerifier(deps.Pins))
	}
	return &SubmissionService{
		db:        db,
		engine:    NewEngine(db, deps.Templates, opts...),
		templates: deps.Templates,
		identity:  deps.Identity,
		tracer:    deps.Tracer,
		validate:  validator.New(),
	}
}

func (s *SubmissionService) Engine() *Engine {
	return s.engine
}

func (s *SubmissionService) startSpan(ctx context.Context, name string, id int) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "SubmissionService."+name)
	if id > 0 {
		span.SetAttributes(attribute.Int("submission.id", id))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	span.End()
}

// CreateContext describes where a new submission belongs.
type CreateContext struct {
	ScopeAbbr string `json:"scope_abbr" validate:"required,max=20"`
	// Year of the numbering sequence; defaults to the current UTC year.
	Year           int    `json:"year" validate:"omitempty,gte=2000,lte=9999"`
	IdempotencyKey string `json:"-"`
}

// Create starts a DRAFT bound to the latest published version of the template. That version
// is frozen on the submission for the rest of its life.
func (s *SubmissionService) Create(ctx context.Context, templateId int, in CreateContext, initialFormData map[string]interface{}) (sub *models.Submission, err error) {
	ctx, span := s.startSpan(ctx, "Create", 0)
	defer func() { endSpan(span, err) }()

	who, err := s.identity.CurrentSigner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	scope, err := models.NormalizeScopeAbbr(in.ScopeAbbr)
	if err != nil {
		return nil, err
	}
	year := in.Year
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	template, err := s.templates.Latest(ctx, templateId)
	if err != nil {
		return nil, err
	}
	if initialFormData == nil {
		initialFormData = map[string]interface{}{}
	}
	if err := validateFormData(template, initialFormData, false); err != nil {
		return nil, err
	}
	hash, err := utils.Digest(initialFormData)
	if err != nil {
		return nil, err
	}

	release := utils.BestEffortLock(ctx, fmt.Sprintf("submission_sequence:%s:%d:%d", who.CompanyId, template.TemplateId, year), 10*time.Second, "SubmissionService.Create")
	defer release()

	var created models.Submission
	for attempt := 0; attempt < 3; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if in.IdempotencyKey != "" {
				existingId, err := BeginIdempotency(tx, who.CompanyId, createSubmissionHandler, in.IdempotencyKey)
				if err != nil {
					return err
				}
				if existingId > 0 {
					return tx.First(&created, existingId).Error
				}
			}

			seq, err := models.NextSubmissionSequence(tx, who.CompanyId, template.TemplateId, year)
			if err != nil {
				return err
			}
			created = models.Submission{
				CompanyId:        who.CompanyId,
				SubmissionNumber: models.FormatSubmissionNumber(template.TemplateCode, scope, year, seq),
				ScopeAbbr:        scope,
				TemplateId:       template.TemplateId,
				TemplateVersion:  template.Version,
				TemplateCode:     template.TemplateCode,
				FormData:         datatypes.JSONMap(initialFormData),
				Status:           models.SubmissionStatusDraft,
				ContentHash:      hash,
				RowVersion:       1,
				CreatedBy:        who.UserId,
				CreatedByName:    who.Name,
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			if err := models.CreateStatusHistory(tx, models.NewStatusHistory{
				SubmissionId: created.ID,
				Action:       "create",
				FromStatus:   models.SubmissionStatusDraft,
				ToStatus:     models.SubmissionStatusDraft,
				ContentHash:  hash,
			}); err != nil {
				return err
			}
			if in.IdempotencyKey != "" {
				return MarkIdempotencySucceeded(tx, who.CompanyId, createSubmissionHandler, in.IdempotencyKey, created.ID)
			}
			return nil
		})
		// a duplicate submission number means another writer won the sequence; try again
		if err == nil || !utils.IsDuplicateKeyErr(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *SubmissionService) load(ctx context.Context, id int) (*models.Submission, error) {
	return models.GetSubmission(ctx, s.db, id)
}

func (s *SubmissionService) Get(ctx context.Context, id int) (sub *models.Submission, err error) {
	ctx, span := s.startSpan(ctx, "Get", id)
	defer func() { endSpan(span, err) }()
	return s.load(ctx, id)
}

// SubmissionDetail is a submission with its audit trail.
type SubmissionDetail struct {
	Submission    *models.Submission               `json:"submission"`
	Signatures    []models.Signature               `json:"signatures"`
	Amendments    []models.Amendment               `json:"amendments"`
	History       []models.SubmissionStatusHistory `json:"history"`
	Attachments   []models.SubmissionAttachment    `json:"attachments"`
	HashVerified  bool                             `json:"hash_verified"`
	AvailableActs []Action                         `json:"available_actions"`
}

func (s *SubmissionService) Detail(ctx context.Context, id int) (detail *SubmissionDetail, err error) {
	ctx, span := s.startSpan(ctx, "Detail", id)
	defer func() { endSpan(span, err) }()

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	d := &SubmissionDetail{Submission: sub, AvailableActs: AvailableActions(sub.Status)}
	if d.Signatures, err = models.ListSignatures(db, id); err != nil {
		return nil, err
	}
	if d.Amendments, err = models.ListAmendments(db, id); err != nil {
		return nil, err
	}
	if d.History, err = models.ListStatusHistory(db, id); err != nil {
		return nil, err
	}
	if d.Attachments, err = models.ListAttachments(ctx, s.db, id); err != nil {
		return nil, err
	}
	if d.HashVerified, _, err = sub.VerifyContentHash(); err != nil {
		return nil, err
	}
	return d, nil
}

// AvailableActions is the UI affordance for a submission's current state.
func (s *SubmissionService) AvailableActions(ctx context.Context, id int) (actions []Action, err error) {
	ctx, span := s.startSpan(ctx, "AvailableActions", id)
	defer func() { endSpan(span, err) }()

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return AvailableActions(sub.Status), nil
}

func (s *SubmissionService) transition(ctx context.Context, name string, id int, action Action, build func(sub *models.Submission, tctx *TransitionContext) error) (sub *models.Submission, err error) {
	ctx, span := s.startSpan(ctx, name, id)
	span.SetAttributes(attribute.String("transition.action", string(action)))
	defer func() { endSpan(span, err) }()

	who, err := s.identity.CurrentSigner(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	tctx := &TransitionContext{Identity: who}
	if build != nil {
		if err := build(current, tctx); err != nil {
			return nil, err
		}
	}
	return s.engine.ExecuteTransition(ctx, current, action, tctx)
}

// UpdateDraft replaces the form data of a DRAFT, or of an unlocked REJECTED submission
// being corrected.
func (s *SubmissionService) UpdateDraft(ctx context.Context, id int, formData map[string]interface{}) (*models.Submission, error) {
	return s.transition(ctx, "UpdateDraft", id, ActionSave, func(sub *models.Submission, tctx *TransitionContext) error {
		switch {
		case sub.Status == models.SubmissionStatusDraft && !sub.IsLocked:
		case sub.Status == models.SubmissionStatusRejected && !sub.IsLocked:
			// rejected_edits_allowed decides
		case sub.IsLocked:
			return ErrLockedFormEdit
		default:
			return ErrNotDraft
		}
		tctx.FormData = formData
		return nil
	})
}

func (s *SubmissionService) Submit(ctx context.Context, id int) (*models.Submission, error) {
	return s.transition(ctx, "Submit", id, ActionSubmit, nil)
}

func (s *SubmissionService) StartSigning(ctx context.Context, id int) (*models.Submission, error) {
	return s.transition(ctx, "StartSigning", id, ActionStartSigning, nil)
}

func (s *SubmissionService) Sign(ctx context.Context, id int, order int, method models.SignatureMethod, pin string) (*models.Submission, error) {
	return s.transition(ctx, "Sign", id, ActionSign, func(sub *models.Submission, tctx *TransitionContext) error {
		if sub.Status != models.SubmissionStatusPendingSignature {
			return ErrNotPending
		}
		tctx.Order = order
		tctx.Method = method
		tctx.Pin = pin
		return nil
	})
}

func (s *SubmissionService) Reject(ctx context.Context, id int, order int, reason string) (*models.Submission, error) {
	return s.transition(ctx, "Reject", id, ActionReject, func(sub *models.Submission, tctx *TransitionContext) error {
		if sub.Status != models.SubmissionStatusPendingSignature {
			return ErrNotPending
		}
		tctx.Order = order
		tctx.Reason = reason
		return nil
	})
}

// Delegate hands the caller's signer slot to another user for the current signing round.
func (s *SubmissionService) Delegate(ctx context.Context, id int, order int, toUserId int, note string) (sub *models.Submission, err error) {
	ctx, span := s.startSpan(ctx, "Delegate", id)
	defer func() { endSpan(span, err) }()

	who, err := s.identity.CurrentSigner(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Delegate(ctx, current, &TransitionContext{Identity: who, Order: order, DelegateTo: toUserId, Reason: note})
}

// Resubmit sends a corrected REJECTED submission back to SUBMITTED. note is optional when the
// form data changed since rejection.
func (s *SubmissionService) Resubmit(ctx context.Context, id int, note string) (*models.Submission, error) {
	return s.transition(ctx, "Resubmit", id, ActionResubmit, func(sub *models.Submission, tctx *TransitionContext) error {
		tctx.CorrectionsNote = note
		return nil
	})
}

func (s *SubmissionService) Amend(ctx context.Context, id int, newFormData map[string]interface{}, reason string, approval *DPAApproval) (*models.Submission, error) {
	return s.transition(ctx, "Amend", id, ActionAmend, func(sub *models.Submission, tctx *TransitionContext) error {
		if sub.Status != models.SubmissionStatusSigned {
			return ErrNotSigned
		}
		tctx.FormData = newFormData
		tctx.Reason = reason
		tctx.Approval = approval
		return nil
	})
}

func (s *SubmissionService) ReSign(ctx context.Context, id int) (*models.Submission, error) {
	return s.transition(ctx, "ReSign", id, ActionReSign, nil)
}

func (s *SubmissionService) Archive(ctx context.Context, id int) (*models.Submission, error) {
	return s.transition(ctx, "Archive", id, ActionArchive, nil)
}

// AddAttachment registers attachment metadata while the form is still editable.
func (s *SubmissionService) AddAttachment(ctx context.Context, id int, input *models.NewAttachment) (a *models.SubmissionAttachment, err error) {
	ctx, span := s.startSpan(ctx, "AddAttachment", id)
	defer func() { endSpan(span, err) }()

	who, err := s.identity.CurrentSigner(ctx)
	if err != nil {
		return nil, err
	}
	if input.ObjectKey == "" {
		input.ObjectKey = models.AttachmentObjectKey(who.CompanyId, id, input.FileName)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsLocked {
		return nil, ErrLockedFormEdit
	}
	if sub.Status != models.SubmissionStatusDraft && sub.Status != models.SubmissionStatusRejected {
		return nil, ErrNotDraft
	}
	if !models.IsAllowedAttachmentMimeType(input.MimeType) {
		return nil, &FormValidationError{Fields: map[string]string{"mime_type": "unsupported type"}}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		a, err = models.CreateAttachment(tx, id, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// IsNotFound reports a missing submission or template.
func IsNotFound(err error) bool {
	return errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
