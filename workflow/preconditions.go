package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"gorm.io/gorm"
)

// RoleDPA is the Designated Person Ashore. Only this role may approve an amendment.
const RoleDPA = "DPA"

// DPAApproval carries the paper trail of an amendment approval. The approver is always
// the acting identity, never a name supplied by the caller.
type DPAApproval struct {
	Reference string `json:"reference"`
}

// TransitionContext carries the caller-supplied inputs of one transition.
type TransitionContext struct {
	Identity Identity
	Template *models.FormTemplateVersion

	// save and amend
	FormData map[string]interface{}

	// sign, reject and delegate
	Order      int
	Method     models.SignatureMethod
	Pin        string
	Reason     string
	DelegateTo int

	// amend
	Approval *DPAApproval

	// resubmit: an explicit statement of what was corrected
	CorrectionsNote string
}

// PreconditionChecker evaluates the named preconditions of the transition table.
type PreconditionChecker struct {
	db          *gorm.DB
	attachments AttachmentVerifier
	pins        PinVerifier
}

// Evaluate checks t's preconditions in table order and returns the first one that fails
// as a *PreconditionFailedError. Infrastructure errors are returned as they are.
func (p *PreconditionChecker) Evaluate(ctx context.Context, t Transition, sub *models.Submission, tctx *TransitionContext) error {
	for _, name := range t.Preconditions {
		if err := p.check(ctx, name, sub, tctx); err != nil {
			return err
		}
	}
	return nil
}

func failed(name string, detail string) error {
	return &PreconditionFailedError{Name: name, Detail: detail}
}

func (p *PreconditionChecker) check(ctx context.Context, name string, sub *models.Submission, tctx *TransitionContext) error {
	switch name {
	case PreconditionFormComplete:
		if tctx.Template == nil {
			return errors.New("template version is required to check form completeness")
		}
		if err := tctx.Template.Schema().ValidateData(sub.Data(), true); err != nil {
			var fe *models.FormDataError
			if errors.As(err, &fe) {
				return &PreconditionFailedError{Name: name, Detail: err.Error(), Fields: fe.Fields}
			}
			return err
		}
	case PreconditionAttachmentsValid:
		attachments, err := models.ListAttachments(ctx, p.db, sub.ID)
		if err != nil {
			return err
		}
		maxBytes := config.MaxAttachmentBytes()
		for _, a := range attachments {
			if err := checkAttachment(a, maxBytes); err != nil {
				return failed(name, err.Error())
			}
			if p.attachments != nil {
				if err := p.attachments.Verify(ctx, a); err != nil {
					return failed(name, err.Error())
				}
			}
		}
	case PreconditionValidPinOrAuth:
		switch tctx.Method {
		case models.SignatureMethodPin:
			if p.pins == nil {
				return failed(name, "pin signing is not configured")
			}
			ok, err := p.pins.VerifyPin(ctx, tctx.Identity, tctx.Pin)
			if err != nil {
				return err
			}
			if !ok {
				return failed(name, "pin does not match")
			}
		case models.SignatureMethodAuth, models.SignatureMethodDrawn:
			if !tctx.Identity.Authenticated {
				return failed(name, "an authenticated session is required")
			}
		default:
			return failed(name, "unknown signature method")
		}
	case PreconditionRejectionReason, PreconditionAmendmentReason:
		if strings.TrimSpace(tctx.Reason) == "" {
			return failed(name, "a reason is required")
		}
	case PreconditionDPAApproval:
		if !config.RequireDPAApproval() {
			return nil
		}
		if !tctx.Identity.HasRole(RoleDPA) {
			return failed(name, "amendments must be approved by the designated person ashore")
		}
	case PreconditionCorrectionsMade:
		if strings.TrimSpace(tctx.CorrectionsNote) != "" {
			return nil
		}
		if sub.RejectedHash == nil || *sub.RejectedHash == sub.ContentHash {
			return failed(name, "form data is unchanged since rejection")
		}
	case PreconditionRejectedEdits:
		if !config.AllowRejectedEdits() {
			return failed(name, "editing rejected submissions is disabled")
		}
		if sub.IsLocked {
			return failed(name, "submission is locked")
		}
	default:
		return failed(name, "unknown precondition")
	}
	return nil
}
