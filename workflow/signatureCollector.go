package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

type SignatureRequest struct {
	Order      int
	Method     models.SignatureMethod
	Action     models.SignatureAction
	Reason     string
	DelegateTo int
}

// SignatureCollector validates and records signature actions for the signer slots of a
// submission's template version.
type SignatureCollector struct{}

// currentDelegation is the latest accepted delegation of a slot, nil when the slot was not handed over.
func currentDelegation(signatures []models.Signature, order int) *models.Signature {
	var last *models.Signature
	for i := range signatures {
		s := &signatures[i]
		if s.IsAccepted() && s.Order == order && s.Action == models.SignatureActionDelegated {
			if last == nil || s.ID > last.ID {
				last = s
			}
		}
	}
	return last
}

// CheckSlot runs every check of a signature request without writing anything.
func (c *SignatureCollector) CheckSlot(sub *models.Submission, signers []models.RequiredSigner, signatures []models.Signature, req SignatureRequest, who Identity) (models.RequiredSigner, error) {
	if sub.Status != models.SubmissionStatusPendingSignature {
		return models.RequiredSigner{}, ErrNotPending
	}
	slot, ok := models.SignerForOrder(signers, req.Order)
	if !ok {
		return models.RequiredSigner{}, fmt.Errorf("%w: no signer slot at order %d", ErrNotAuthorizedSigner, req.Order)
	}
	for _, s := range signatures {
		if s.IsAccepted() && s.Order == req.Order && s.Action == models.SignatureActionSigned {
			return slot, ErrAlreadySigned
		}
	}

	if d := currentDelegation(signatures, req.Order); d != nil {
		if d.DelegatedTo == nil || *d.DelegatedTo != who.UserId {
			return slot, fmt.Errorf("%w: slot %d is delegated to another user", ErrNotAuthorizedSigner, req.Order)
		}
	} else if !who.HasRole(slot.Role) {
		return slot, fmt.Errorf("%w: order %d requires role %s", ErrNotAuthorizedSigner, req.Order, slot.Role)
	}

	switch req.Action {
	case models.SignatureActionSigned:
		// ordering binds mandatory slots only; an optional slot may sign any time while pending
		if !slot.IsMandatory {
			break
		}
		for _, r := range signers {
			if r.IsMandatory && r.Order < req.Order && !slotSigned(signatures, r.Order) {
				return slot, ErrSigningOutOfOrder
			}
		}
	case models.SignatureActionRejected:
		if strings.TrimSpace(req.Reason) == "" {
			return slot, failed(PreconditionRejectionReason, "a reason is required")
		}
	case models.SignatureActionDelegated:
		if req.DelegateTo <= 0 || req.DelegateTo == who.UserId {
			return slot, fmt.Errorf("%w: delegate must be another user", ErrNotAuthorizedSigner)
		}
	default:
		return slot, fmt.Errorf("unknown signature action %q", req.Action)
	}
	return slot, nil
}

func slotSigned(signatures []models.Signature, order int) bool {
	for _, s := range signatures {
		if s.IsAccepted() && s.Order == order && s.Action == models.SignatureActionSigned {
			return true
		}
	}
	return false
}

// RecordSignature re-checks the request against the rows visible inside tx, persists it and
// evaluates completion. Only SIGNED rows occupy the slot; a concurrent signer of the same
// slot loses on the unique slot_key index and gets ErrAlreadySigned.
func (c *SignatureCollector) RecordSignature(tx *gorm.DB, sub *models.Submission, signers []models.RequiredSigner, req SignatureRequest, who Identity) (*models.Signature, CompletionResult, error) {
	signatures, err := models.ListAcceptedSignatures(tx, sub.ID)
	if err != nil {
		return nil, CompletionResult{}, err
	}
	slot, err := c.CheckSlot(sub, signers, signatures, req, who)
	if err != nil {
		return nil, CompletionResult{}, err
	}

	sig := models.Signature{
		CompanyId:    sub.CompanyId,
		SubmissionId: sub.ID,
		Order:        req.Order,
		SignerId:     who.UserId,
		SignerName:   who.Name,
		Role:         slot.Role,
		Method:       req.Method,
		Action:       req.Action,
		SigningRound: sub.SigningRound,
		ContentHash:  sub.ContentHash,
		SignedAt:     time.Now().UTC(),
	}
	switch req.Action {
	case models.SignatureActionSigned:
		key := models.SignatureSlotKey(sub.ID, req.Order)
		sig.SlotKey = &key
	case models.SignatureActionRejected:
		reason := strings.TrimSpace(req.Reason)
		sig.RejectionReason = &reason
	case models.SignatureActionDelegated:
		to := req.DelegateTo
		sig.DelegatedTo = &to
	}
	if err := tx.Create(&sig).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, CompletionResult{}, ErrAlreadySigned
		}
		return nil, CompletionResult{}, err
	}

	signatures = append(signatures, sig)
	return &sig, EvaluateCompletion(signatures, signers), nil
}
