package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Engine executes lifecycle transitions. All checks run before the transaction opens;
// the status change and its persisted effects share one transaction; notifications run
// after commit.
type Engine struct {
	db         *gorm.DB
	templates  TemplateProvider
	checks     *PreconditionChecker
	signatures *SignatureCollector
	amendments *AmendmentManager
	notifier   NotificationSink
	logger     *logrus.Logger
}

type EngineOption func(*Engine)

func WithNotifier(n NotificationSink) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithAttachmentVerifier(v AttachmentVerifier) EngineOption {
	return func(e *Engine) { e.checks.attachments = v }
}

func WithPinVerifier(v PinVerifier) EngineOption {
	return func(e *Engine) { e.checks.pins = v }
}

func NewEngine(db *gorm.DB, templates TemplateProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		db:         db,
		templates:  templates,
		checks:     &PreconditionChecker{db: db, pins: BcryptPinVerifier{DB: db}},
		signatures: &SignatureCollector{},
		amendments: &AmendmentManager{},
		notifier:   noopNotifier{},
		logger:     config.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// prepared holds values computed before the transaction opens.
type prepared struct {
	transition Transition
	template   *models.FormTemplateVersion
	signers    []models.RequiredSigner
	newHash    string
}

// ExecuteTransition applies action to sub. sub must be the caller's latest read: if the row
// changed since, the call fails with ErrConcurrencyConflict and writes nothing.
func (e *Engine) ExecuteTransition(ctx context.Context, sub *models.Submission, action Action, tctx *TransitionContext) (*models.Submission, error) {
	if tctx == nil {
		tctx = &TransitionContext{}
	}
	p, err := e.prepare(ctx, sub, action, tctx)
	if err != nil {
		return nil, err
	}

	var (
		updated       models.Submission
		notifications []Notification
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockSubmission(tx, sub.ID)
		if err != nil {
			return err
		}
		if locked.Status != sub.Status || locked.RowVersion != sub.RowVersion {
			return ErrConcurrencyConflict
		}

		to, changes, notes, err := e.applyEffects(tx, locked, p, action, tctx)
		if err != nil {
			return err
		}
		swapped, err := models.CompareAndSwapSubmission(tx, locked, changes)
		if err != nil {
			return err
		}
		if !swapped {
			return ErrConcurrencyConflict
		}

		hash := locked.ContentHash
		if p.newHash != "" {
			hash = p.newHash
		}
		if err := models.CreateStatusHistory(tx, models.NewStatusHistory{
			SubmissionId: locked.ID,
			Action:       string(action),
			FromStatus:   locked.Status,
			ToStatus:     to,
			Reason:       strings.TrimSpace(tctx.Reason),
			ContentHash:  hash,
		}); err != nil {
			return err
		}
		if err := tx.First(&updated, locked.ID).Error; err != nil {
			return err
		}
		notifications = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, notifications)
	return &updated, nil
}

func (e *Engine) prepare(ctx context.Context, sub *models.Submission, action Action, tctx *TransitionContext) (*prepared, error) {
	t, ok := CanTransition(sub.Status, action)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not allowed from %s", ErrInvalidTransition, action, sub.Status)
	}
	p := &prepared{transition: t, template: tctx.Template}
	if p.template == nil {
		v, err := e.templates.Resolve(ctx, sub.TemplateId, sub.TemplateVersion)
		if err != nil {
			return nil, err
		}
		p.template = v
		tctx.Template = v
	}
	p.signers = p.template.Signers()

	if (action == ActionSave || action == ActionAmend) && tctx.FormData == nil {
		tctx.FormData = map[string]interface{}{}
	}
	// new form data is validated against the submission's own template version
	switch action {
	case ActionSave:
		// a rejected submission was complete when it was submitted and must stay so
		complete := sub.Status == models.SubmissionStatusRejected
		if err := validateFormData(p.template, tctx.FormData, complete); err != nil {
			return nil, err
		}
	case ActionAmend:
		if err := validateFormData(p.template, tctx.FormData, true); err != nil {
			return nil, err
		}
	}

	if err := e.checks.Evaluate(ctx, t, sub, tctx); err != nil {
		return nil, err
	}

	if t.HasEffect(EffectRecordSignature) {
		signatures, err := models.ListAcceptedSignatures(e.db.WithContext(ctx), sub.ID)
		if err != nil {
			return nil, err
		}
		if _, err := e.signatures.CheckSlot(sub, p.signers, signatures, signatureRequest(action, tctx), tctx.Identity); err != nil {
			return nil, err
		}
	}

	switch action {
	case ActionSave, ActionAmend:
		h, err := utils.Digest(tctx.FormData)
		if err != nil {
			return nil, err
		}
		p.newHash = h
	case ActionSubmit, ActionResubmit:
		h, err := utils.Digest(sub.Data())
		if err != nil {
			return nil, err
		}
		p.newHash = h
	}
	return p, nil
}

func validateFormData(template *models.FormTemplateVersion, data map[string]interface{}, complete bool) error {
	if err := template.Schema().ValidateData(data, complete); err != nil {
		var fe *models.FormDataError
		if errors.As(err, &fe) {
			return &FormValidationError{Fields: fe.Fields}
		}
		return err
	}
	return nil
}

func signatureRequest(action Action, tctx *TransitionContext) SignatureRequest {
	req := SignatureRequest{Order: tctx.Order, Method: tctx.Method, Reason: tctx.Reason, Action: models.SignatureActionSigned}
	if action == ActionReject {
		req.Action = models.SignatureActionRejected
	}
	return req
}

// applyEffects writes the persisted effects of the transition and returns the final status,
// the column changes for the compare-and-swap and the notifications to send after commit.
func (e *Engine) applyEffects(tx *gorm.DB, sub *models.Submission, p *prepared, action Action, tctx *TransitionContext) (models.SubmissionStatus, map[string]interface{}, []Notification, error) {
	now := time.Now().UTC()
	to := p.transition.To
	changes := map[string]interface{}{}
	var notes []Notification

	for _, effect := range p.transition.Effects {
		switch effect {
		case EffectLockForm:
			changes["is_locked"] = true
		case EffectUnlockForm:
			changes["is_locked"] = false
		case EffectRecordSignature:
			_, result, err := e.signatures.RecordSignature(tx, sub, p.signers, signatureRequest(action, tctx), tctx.Identity)
			if err != nil {
				return "", nil, nil, err
			}
			if action == ActionSign {
				if result.Complete {
					to = models.SubmissionStatusSigned
					changes["signed_at"] = now
					notes = append(notes, Notification{
						Kind:            models.NotificationKindSigningCompleted,
						RecipientUserId: sub.CreatedBy,
						Message:         fmt.Sprintf("%s is fully signed", sub.SubmissionNumber),
					})
				} else if len(result.MissingOrders) > 0 {
					if next, ok := models.SignerForOrder(p.signers, result.MissingOrders[0]); ok {
						notes = append(notes, Notification{
							Kind:           models.NotificationKindNextSigner,
							RecipientRoles: []string{next.Role},
							Message:        fmt.Sprintf("%s is waiting for your signature", sub.SubmissionNumber),
						})
					}
				}
			}
		case EffectCreateAmendmentRecord:
			if _, err := e.amendments.CreateAmendment(tx, sub, AmendmentRequest{
				NewFormData: tctx.FormData,
				Reason:      tctx.Reason,
				Approval:    tctx.Approval,
			}, tctx.Identity); err != nil {
				return "", nil, nil, err
			}
		case EffectSupersedeSignatures:
			if _, err := models.SupersedeSignatures(tx, sub.ID, now); err != nil {
				return "", nil, nil, err
			}
		case EffectNotifyFirstSigner:
			if len(p.signers) > 0 {
				notes = append(notes, Notification{
					Kind:           models.NotificationKindFirstSigner,
					RecipientRoles: []string{p.signers[0].Role},
					Message:        fmt.Sprintf("%s was submitted and needs your signature", sub.SubmissionNumber),
				})
			}
		case EffectNotifySubmitter:
			notes = append(notes, Notification{
				Kind:            models.NotificationKindSubmitter,
				RecipientUserId: sub.CreatedBy,
				Message:         fmt.Sprintf("%s was rejected: %s", sub.SubmissionNumber, strings.TrimSpace(tctx.Reason)),
			})
		case EffectRequestReSignatures:
			roles := make([]string, 0, len(p.signers))
			for _, s := range p.signers {
				if s.IsMandatory {
					roles = append(roles, s.Role)
				}
			}
			notes = append(notes, Notification{
				Kind:           models.NotificationKindReSignRequest,
				RecipientRoles: utils.UniqueSlice(roles),
				Message:        fmt.Sprintf("%s was amended and must be signed again", sub.SubmissionNumber),
			})
		}
	}

	switch action {
	case ActionSave, ActionAmend:
		changes["form_data"] = datatypes.JSONMap(tctx.FormData)
		changes["content_hash"] = p.newHash
	case ActionSubmit:
		changes["content_hash"] = p.newHash
		changes["submitted_at"] = now
	case ActionResubmit:
		changes["content_hash"] = p.newHash
		changes["submitted_at"] = now
		changes["rejected_hash"] = nil
	case ActionStartSigning, ActionReSign:
		changes["signing_round"] = sub.SigningRound + 1
		changes["is_locked"] = true
	case ActionReject:
		rejected := sub.ContentHash
		changes["rejected_hash"] = &rejected
	case ActionArchive:
		changes["archived_at"] = now
	}
	changes["status"] = to

	for i := range notes {
		notes[i].CompanyId = sub.CompanyId
		notes[i].SubmissionId = sub.ID
		notes[i].SubmissionNumber = sub.SubmissionNumber
	}
	return to, changes, notes, nil
}

// notify hands notifications to the sink. A failure here never fails the transition.
func (e *Engine) notify(ctx context.Context, notes []Notification) {
	for _, n := range notes {
		if err := e.notifier.Notify(ctx, n); err != nil {
			config.LogError(e.logger, "Engine", "notify", n.Kind, n, err)
		}
	}
}

// Delegate hands a signer slot to another user. The status does not change, but the row
// version does, so a signature racing the delegation fails with a conflict.
func (e *Engine) Delegate(ctx context.Context, sub *models.Submission, tctx *TransitionContext) (*models.Submission, error) {
	if sub.Status != models.SubmissionStatusPendingSignature {
		return nil, ErrNotPending
	}
	template := tctx.Template
	if template == nil {
		v, err := e.templates.Resolve(ctx, sub.TemplateId, sub.TemplateVersion)
		if err != nil {
			return nil, err
		}
		template = v
	}
	signers := template.Signers()
	req := SignatureRequest{Order: tctx.Order, Action: models.SignatureActionDelegated, DelegateTo: tctx.DelegateTo, Reason: tctx.Reason}

	signatures, err := models.ListAcceptedSignatures(e.db.WithContext(ctx), sub.ID)
	if err != nil {
		return nil, err
	}
	if _, err := e.signatures.CheckSlot(sub, signers, signatures, req, tctx.Identity); err != nil {
		return nil, err
	}

	var updated models.Submission
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockSubmission(tx, sub.ID)
		if err != nil {
			return err
		}
		if locked.Status != sub.Status || locked.RowVersion != sub.RowVersion {
			return ErrConcurrencyConflict
		}
		if _, _, err := e.signatures.RecordSignature(tx, locked, signers, req, tctx.Identity); err != nil {
			return err
		}
		swapped, err := models.CompareAndSwapSubmission(tx, locked, map[string]interface{}{"status": locked.Status})
		if err != nil {
			return err
		}
		if !swapped {
			return ErrConcurrencyConflict
		}
		if err := models.CreateStatusHistory(tx, models.NewStatusHistory{
			SubmissionId: locked.ID,
			Action:       "delegate",
			FromStatus:   locked.Status,
			ToStatus:     locked.Status,
			Reason:       fmt.Sprintf("order %d delegated to user %d", tctx.Order, tctx.DelegateTo),
			ContentHash:  locked.ContentHash,
		}); err != nil {
			return err
		}
		return tx.First(&updated, locked.ID).Error
	})
	if err != nil {
		return nil, err
	}

	e.notify(ctx, []Notification{{
		CompanyId:        updated.CompanyId,
		Kind:             models.NotificationKindDelegated,
		SubmissionId:     updated.ID,
		SubmissionNumber: updated.SubmissionNumber,
		RecipientUserId:  tctx.DelegateTo,
		Message:          fmt.Sprintf("%s signer slot %d was delegated to you", updated.SubmissionNumber, tctx.Order),
	}})
	return &updated, nil
}
