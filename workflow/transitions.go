package workflow

import "github.com/mmdatafocus/compliance_backend/models"

type Action string

const (
	ActionSave         Action = "save"
	ActionSubmit       Action = "submit"
	ActionStartSigning Action = "start_signing"
	ActionSign         Action = "sign"
	ActionReject       Action = "reject"
	ActionAmend        Action = "amend"
	ActionResubmit     Action = "resubmit"
	ActionReSign       Action = "re_sign"
	ActionArchive      Action = "archive"
)

const (
	PreconditionFormComplete     = "form_complete"
	PreconditionAttachmentsValid = "attachments_valid"
	PreconditionValidPinOrAuth   = "valid_pin_or_auth"
	PreconditionRejectionReason  = "rejection_reason"
	PreconditionAmendmentReason  = "amendment_reason"
	PreconditionDPAApproval      = "dpa_approval"
	PreconditionCorrectionsMade  = "corrections_made"
	PreconditionRejectedEdits    = "rejected_edits_allowed"
)

type Effect string

const (
	EffectNotifyFirstSigner     Effect = "notify_first_signer"
	EffectLockForm              Effect = "lock_form"
	EffectUnlockForm            Effect = "unlock_form"
	EffectRecordSignature       Effect = "record_signature"
	EffectNotifySubmitter       Effect = "notify_submitter"
	EffectCreateAmendmentRecord Effect = "create_amendment_record"
	EffectSupersedeSignatures   Effect = "supersede_signatures"
	EffectRequestReSignatures   Effect = "request_re_signatures"
)

// Transition is one row of the lifecycle table. Preconditions are evaluated in order.
type Transition struct {
	From          models.SubmissionStatus
	Action        Action
	To            models.SubmissionStatus
	Preconditions []string
	Effects       []Effect
}

var transitionTable = []Transition{
	{From: models.SubmissionStatusDraft, Action: ActionSubmit, To: models.SubmissionStatusSubmitted,
		Preconditions: []string{PreconditionFormComplete, PreconditionAttachmentsValid},
		Effects:       []Effect{EffectNotifyFirstSigner}},
	{From: models.SubmissionStatusDraft, Action: ActionSave, To: models.SubmissionStatusDraft},
	{From: models.SubmissionStatusSubmitted, Action: ActionStartSigning, To: models.SubmissionStatusPendingSignature,
		Effects: []Effect{EffectLockForm}},
	// sign stays in PENDING_SIGNATURE until the completion rule auto-advances it to SIGNED
	{From: models.SubmissionStatusPendingSignature, Action: ActionSign, To: models.SubmissionStatusPendingSignature,
		Preconditions: []string{PreconditionValidPinOrAuth},
		Effects:       []Effect{EffectRecordSignature}},
	{From: models.SubmissionStatusPendingSignature, Action: ActionReject, To: models.SubmissionStatusRejected,
		Preconditions: []string{PreconditionRejectionReason},
		Effects:       []Effect{EffectRecordSignature, EffectUnlockForm, EffectNotifySubmitter}},
	{From: models.SubmissionStatusSigned, Action: ActionAmend, To: models.SubmissionStatusAmended,
		Preconditions: []string{PreconditionAmendmentReason, PreconditionDPAApproval},
		Effects:       []Effect{EffectCreateAmendmentRecord}},
	{From: models.SubmissionStatusRejected, Action: ActionResubmit, To: models.SubmissionStatusSubmitted,
		Preconditions: []string{PreconditionCorrectionsMade},
		Effects:       []Effect{EffectSupersedeSignatures, EffectNotifyFirstSigner}},
	{From: models.SubmissionStatusAmended, Action: ActionReSign, To: models.SubmissionStatusPendingSignature,
		Effects: []Effect{EffectSupersedeSignatures, EffectRequestReSignatures}},
	// corrections on an unlocked rejected submission
	{From: models.SubmissionStatusRejected, Action: ActionSave, To: models.SubmissionStatusRejected,
		Preconditions: []string{PreconditionRejectedEdits}},
	// retention close-out
	{From: models.SubmissionStatusSigned, Action: ActionArchive, To: models.SubmissionStatusArchived,
		Effects: []Effect{EffectLockForm}},
	{From: models.SubmissionStatusRejected, Action: ActionArchive, To: models.SubmissionStatusArchived,
		Effects: []Effect{EffectLockForm}},
}

// CanTransition looks up the table row for (state, action). It has no side effects.
func CanTransition(state models.SubmissionStatus, action Action) (Transition, bool) {
	for _, t := range transitionTable {
		if t.From == state && t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// AvailableActions lists the actions defined for state, in table order.
func AvailableActions(state models.SubmissionStatus) []Action {
	out := make([]Action, 0, 2)
	for _, t := range transitionTable {
		if t.From == state {
			out = append(out, t.Action)
		}
	}
	return out
}

func (t Transition) HasEffect(e Effect) bool {
	for _, x := range t.Effects {
		if x == e {
			return true
		}
	}
	return false
}

func AllActions() []Action {
	return []Action{ActionSave, ActionSubmit, ActionStartSigning, ActionSign, ActionReject,
		ActionAmend, ActionResubmit, ActionReSign, ActionArchive}
}
