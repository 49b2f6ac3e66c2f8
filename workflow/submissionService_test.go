package workflow

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/compliance_backend/models"
)

func TestSignInOrderReachesSigned(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	if !sub.IsLocked || sub.SigningRound != 1 {
		t.Fatalf("pending submission should be locked in round 1: %+v", sub)
	}

	sub = f.sign(t, sub.ID, masterId, "MASTER", 1)
	if sub.Status != models.SubmissionStatusPendingSignature {
		t.Fatalf("expected PENDING_SIGNATURE after first signature, got %s", sub.Status)
	}
	sub = f.sign(t, sub.ID, chiefId, "CHIEF_OFFICER", 2)
	if sub.Status != models.SubmissionStatusSigned {
		t.Fatalf("expected SIGNED, got %s", sub.Status)
	}
	if sub.SignedAt == nil {
		t.Fatalf("signed_at not set")
	}

	detail, err := f.svc.Detail(userContext(submitterId, "OFFICER"), sub.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Signatures) != 2 || !detail.HashVerified {
		t.Fatalf("unexpected detail: %d signatures, verified=%v", len(detail.Signatures), detail.HashVerified)
	}
	for _, s := range detail.Signatures {
		if s.ContentHash != sub.ContentHash {
			t.Fatalf("signature %d bound to %s, submission hash %s", s.Order, s.ContentHash, sub.ContentHash)
		}
	}
	// create, submit, start_signing, sign, sign
	if len(detail.History) != 5 {
		t.Fatalf("expected 5 history rows, got %d", len(detail.History))
	}

	kinds := strings.Join(f.notifier.kinds(), ",")
	for _, k := range []string{models.NotificationKindFirstSigner, models.NotificationKindNextSigner, models.NotificationKindSigningCompleted} {
		if !strings.Contains(kinds, k) {
			t.Fatalf("missing %s notification in %s", k, kinds)
		}
	}
}

func TestOptionalSignerIsNotRequired(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	f.sign(t, sub.ID, masterId, "MASTER", 1)
	sub = f.sign(t, sub.ID, chiefId, "CHIEF_OFFICER", 2)
	if sub.Status != models.SubmissionStatusSigned {
		t.Fatalf("optional bosun slot must not block completion, got %s", sub.Status)
	}
}

func TestOptionalSignerSignsBeforeCompletion(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	f.sign(t, sub.ID, masterId, "MASTER", 1)

	sub = f.sign(t, sub.ID, bosunId, "BOSUN", 3)
	if sub.Status != models.SubmissionStatusPendingSignature {
		t.Fatalf("optional signature must not complete the submission, got %s", sub.Status)
	}
	sub = f.sign(t, sub.ID, chiefId, "CHIEF_OFFICER", 2)
	if sub.Status != models.SubmissionStatusSigned {
		t.Fatalf("expected SIGNED once the last mandatory slot signs, got %s", sub.Status)
	}

	detail, err := f.svc.Detail(userContext(submitterId, "OFFICER"), sub.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Signatures) != 3 {
		t.Fatalf("expected 3 signatures, got %d", len(detail.Signatures))
	}

	_, err = f.svc.Sign(userContext(bosunId, "BOSUN"), sub.ID, 3, models.SignatureMethodAuth, "")
	expectKind(t, err, "NotPending")
}

func TestRejectUnlocksAndResubmitNeedsCorrections(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	masterCtx := userContext(masterId, "MASTER")

	_, err := f.svc.Reject(masterCtx, sub.ID, 1, "  ")
	expectKind(t, err, "PreconditionFailed")

	sub, err = f.svc.Reject(masterCtx, sub.ID, 1, "incomplete")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if sub.Status != models.SubmissionStatusRejected || sub.IsLocked {
		t.Fatalf("expected unlocked REJECTED, got %s locked=%v", sub.Status, sub.IsLocked)
	}

	submitterCtx := userContext(submitterId, "OFFICER")
	_, err = f.svc.Resubmit(submitterCtx, sub.ID, "")
	var pf *PreconditionFailedError
	if !errors.As(err, &pf) || pf.Name != PreconditionCorrectionsMade {
		t.Fatalf("expected corrections_made failure, got %v", err)
	}

	fixed := completeData()
	fixed["berth"] = "B8"
	if _, err := f.svc.UpdateDraft(submitterCtx, sub.ID, fixed); err != nil {
		t.Fatalf("correct rejected submission: %v", err)
	}
	sub, err = f.svc.Resubmit(submitterCtx, sub.ID, "")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub.Status != models.SubmissionStatusSubmitted || sub.RejectedHash != nil {
		t.Fatalf("expected SUBMITTED with cleared rejected hash, got %s", sub.Status)
	}

	sigs, err := models.ListAcceptedSignatures(f.db.WithContext(submitterCtx), sub.ID)
	if err != nil {
		t.Fatalf("list signatures: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("rejection must be superseded on resubmit, %d accepted rows left", len(sigs))
	}

	sub, err = f.svc.StartSigning(submitterCtx, sub.ID)
	if err != nil {
		t.Fatalf("start signing: %v", err)
	}
	if sub.SigningRound != 2 {
		t.Fatalf("expected round 2, got %d", sub.SigningRound)
	}
	f.sign(t, sub.ID, masterId, "MASTER", 1)
	if sub = f.sign(t, sub.ID, chiefId, "CHIEF_OFFICER", 2); sub.Status != models.SubmissionStatusSigned {
		t.Fatalf("expected SIGNED after re-signing, got %s", sub.Status)
	}
}

func TestResubmitWithCorrectionsNote(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	if _, err := f.svc.Reject(userContext(masterId, "MASTER"), sub.ID, 1, "incomplete"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	sub, err := f.svc.Resubmit(userContext(submitterId, "OFFICER"), sub.ID, "attached missing crew list")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub.Status != models.SubmissionStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", sub.Status)
	}
}

func TestRejectedEditsCanBeDisabled(t *testing.T) {
	t.Setenv("ALLOW_REJECTED_EDITS", "false")
	f := newFixture(t)
	sub := f.pending(t)
	if _, err := f.svc.Reject(userContext(masterId, "MASTER"), sub.ID, 1, "incomplete"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err := f.svc.UpdateDraft(userContext(submitterId, "OFFICER"), sub.ID, completeData())
	var pf *PreconditionFailedError
	if !errors.As(err, &pf) || pf.Name != PreconditionRejectedEdits {
		t.Fatalf("expected rejected_edits_allowed failure, got %v", err)
	}
}

func TestAmendThenReSign(t *testing.T) {
	f := newFixture(t)
	sub := f.signed(t)
	signedHash := sub.ContentHash
	ctx := userContext(dpaId, RoleDPA)

	next := completeData()
	next["berth"] = "B9"
	amended, err := f.svc.Amend(ctx, sub.ID, next, "correct berth", &DPAApproval{Reference: "DPA-7"})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if amended.Status != models.SubmissionStatusAmended {
		t.Fatalf("expected AMENDED, got %s", amended.Status)
	}
	if amended.ContentHash == signedHash {
		t.Fatalf("content hash must change with the form data")
	}
	if ok, _, err := amended.VerifyContentHash(); err != nil || !ok {
		t.Fatalf("stored hash does not match form data: %v", err)
	}

	amendments, err := models.ListAmendments(f.db.WithContext(ctx), sub.ID)
	if err != nil {
		t.Fatalf("list amendments: %v", err)
	}
	if len(amendments) != 1 {
		t.Fatalf("expected 1 amendment, got %d", len(amendments))
	}
	a := amendments[0]
	if a.AmendmentNumber != 1 || len(a.ChangedFields) != 1 || a.ChangedFields[0] != "berth" {
		t.Fatalf("unexpected amendment: number=%d changed=%v", a.AmendmentNumber, a.ChangedFields)
	}
	if a.PreviousHash != signedHash || a.NewHash != amended.ContentHash || !a.RequiresReSignature {
		t.Fatalf("amendment hashes not recorded: %+v", a)
	}
	if a.ApprovedById != dpaId || a.ApprovedBy != RoleDPA || a.ApprovalReference != "DPA-7" {
		t.Fatalf("approval not recorded: %+v", a)
	}

	resigning, err := f.svc.ReSign(ctx, sub.ID)
	if err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	if resigning.Status != models.SubmissionStatusPendingSignature || !resigning.IsLocked {
		t.Fatalf("expected locked PENDING_SIGNATURE, got %s", resigning.Status)
	}
	if !strings.Contains(strings.Join(f.notifier.kinds(), ","), models.NotificationKindReSignRequest) {
		t.Fatalf("re-sign request not notified")
	}

	if s := f.sign(t, sub.ID, masterId, "MASTER", 1); s.Status != models.SubmissionStatusPendingSignature {
		t.Fatalf("one signature after amendment must not complete, got %s", s.Status)
	}
	final := f.sign(t, sub.ID, chiefId, "CHIEF_OFFICER", 2)
	if final.Status != models.SubmissionStatusSigned {
		t.Fatalf("expected SIGNED, got %s", final.Status)
	}

	all, _ := models.ListSignatures(f.db.WithContext(ctx), sub.ID)
	superseded := 0
	for _, s := range all {
		if !s.IsAccepted() {
			superseded++
			if s.ContentHash != signedHash {
				t.Fatalf("superseded signature should keep the old hash")
			}
		} else if s.ContentHash != final.ContentHash {
			t.Fatalf("new signature bound to the wrong hash")
		}
	}
	if superseded != 2 {
		t.Fatalf("expected the 2 original signatures superseded, got %d", superseded)
	}
}

func TestAmendRequiresApprovalAndReason(t *testing.T) {
	f := newFixture(t)
	sub := f.signed(t)
	ctx := userContext(submitterId, "OFFICER")

	_, err := f.svc.Amend(ctx, sub.ID, completeData(), "", &DPAApproval{Reference: "DPA-1"})
	var pf *PreconditionFailedError
	if !errors.As(err, &pf) || pf.Name != PreconditionAmendmentReason {
		t.Fatalf("expected amendment_reason first, got %v", err)
	}
	_, err = f.svc.Amend(ctx, sub.ID, completeData(), "typo", nil)
	if !errors.As(err, &pf) || pf.Name != PreconditionDPAApproval {
		t.Fatalf("expected dpa_approval, got %v", err)
	}
	// an approval reference from a non DPA caller proves nothing
	_, err = f.svc.Amend(ctx, sub.ID, completeData(), "typo", &DPAApproval{Reference: "DPA-1"})
	if !errors.As(err, &pf) || pf.Name != PreconditionDPAApproval {
		t.Fatalf("expected dpa_approval for a claimed approval, got %v", err)
	}
	if _, err := f.svc.Amend(userContext(dpaId, RoleDPA), sub.ID, completeData(), "typo", nil); err != nil {
		t.Fatalf("amend by the DPA: %v", err)
	}

	other := f.signed(t)
	t.Setenv("REQUIRE_DPA_APPROVAL", "false")
	if _, err := f.svc.Amend(ctx, other.ID, completeData(), "typo", nil); err != nil {
		t.Fatalf("amend without approval when not required: %v", err)
	}
}

func TestAmendValidatesAgainstFrozenSchema(t *testing.T) {
	f := newFixture(t)
	sub := f.signed(t)
	bad := completeData()
	bad["crew_count"] = 2.5
	_, err := f.svc.Amend(userContext(submitterId, "OFFICER"), sub.ID, bad, "fix", &DPAApproval{Reference: "DPA-2"})
	var fe *FormValidationError
	if !errors.As(err, &fe) || fe.Fields["crew_count"] == "" {
		t.Fatalf("expected crew_count validation error, got %v", err)
	}
}

func TestAmendOnlyFromSigned(t *testing.T) {
	f := newFixture(t)
	ctx := userContext(submitterId, "OFFICER")

	draft := f.create(t, completeData())
	_, err := f.svc.Amend(ctx, draft.ID, completeData(), "x", nil)
	expectKind(t, err, "NotSigned")

	submitted := f.create(t, completeData())
	if _, err := f.svc.Submit(ctx, submitted.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = f.svc.Amend(ctx, submitted.ID, completeData(), "x", nil)
	expectKind(t, err, "NotSigned")

	pending := f.pending(t)
	_, err = f.svc.Amend(ctx, pending.ID, completeData(), "x", nil)
	expectKind(t, err, "NotSigned")
}

func TestSignErrors(t *testing.T) {
	f := newFixture(t)
	draft := f.create(t, completeData())
	_, err := f.svc.Sign(userContext(masterId, "MASTER"), draft.ID, 1, models.SignatureMethodAuth, "")
	expectKind(t, err, "NotPending")

	sub := f.pending(t)
	_, err = f.svc.Sign(userContext(chiefId, "CHIEF_OFFICER"), sub.ID, 1, models.SignatureMethodAuth, "")
	expectKind(t, err, "NotAuthorizedSigner")

	_, err = f.svc.Sign(userContext(chiefId, "CHIEF_OFFICER"), sub.ID, 2, models.SignatureMethodAuth, "")
	if !errors.Is(err, ErrSigningOutOfOrder) {
		t.Fatalf("expected out of order signing, got %v", err)
	}

	_, err = f.svc.Sign(userContext(masterId, "MASTER"), sub.ID, 9, models.SignatureMethodAuth, "")
	expectKind(t, err, "NotAuthorizedSigner")

	f.sign(t, sub.ID, masterId, "MASTER", 1)
	_, err = f.svc.Sign(userContext(masterId, "MASTER"), sub.ID, 1, models.SignatureMethodAuth, "")
	expectKind(t, err, "AlreadySigned")
}

func TestSignRequiresAuthenticatedSession(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	ctx := userContext(masterId, "MASTER")
	ctx = setAuthenticated(ctx, false)
	_, err := f.svc.Sign(ctx, sub.ID, 1, models.SignatureMethodDrawn, "")
	var pf *PreconditionFailedError
	if !errors.As(err, &pf) || pf.Name != PreconditionValidPinOrAuth {
		t.Fatalf("expected valid_pin_or_auth failure, got %v", err)
	}
}

func TestSignWithPin(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	ctx := userContext(masterId, "MASTER")

	_, err := f.svc.Sign(ctx, sub.ID, 1, models.SignatureMethodPin, "4321")
	expectKind(t, err, "PreconditionFailed")

	if err := models.SetSignerPin(ctx, f.db, testCompany, masterId, "4321"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	_, err = f.svc.Sign(ctx, sub.ID, 1, models.SignatureMethodPin, "0000")
	expectKind(t, err, "PreconditionFailed")

	out, err := f.svc.Sign(ctx, sub.ID, 1, models.SignatureMethodPin, "4321")
	if err != nil {
		t.Fatalf("sign with pin: %v", err)
	}
	if out.Status != models.SubmissionStatusPendingSignature {
		t.Fatalf("unexpected status %s", out.Status)
	}
}

func TestDelegatedSlot(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	masterCtx := userContext(masterId, "MASTER")

	_, err := f.svc.Delegate(masterCtx, sub.ID, 1, masterId, "")
	expectKind(t, err, "NotAuthorizedSigner")

	delegated, err := f.svc.Delegate(masterCtx, sub.ID, 1, relieverId, "shore leave")
	if err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if delegated.Status != models.SubmissionStatusPendingSignature || delegated.RowVersion == sub.RowVersion {
		t.Fatalf("delegation keeps the status and bumps the row version: %+v", delegated)
	}

	// the original role holder no longer owns the slot
	_, err = f.svc.Sign(masterCtx, sub.ID, 1, models.SignatureMethodAuth, "")
	expectKind(t, err, "NotAuthorizedSigner")

	out := f.sign(t, sub.ID, relieverId, "OFFICER", 1)
	if out.Status != models.SubmissionStatusPendingSignature {
		t.Fatalf("unexpected status %s", out.Status)
	}
	if !strings.Contains(strings.Join(f.notifier.kinds(), ","), models.NotificationKindDelegated) {
		t.Fatalf("delegate was not notified")
	}
}

func TestSubmitIncompleteReportsFields(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, map[string]interface{}{"port": "Rotterdam"})
	_, err := f.svc.Submit(userContext(submitterId, "OFFICER"), sub.ID)
	var pf *PreconditionFailedError
	if !errors.As(err, &pf) || pf.Name != PreconditionFormComplete {
		t.Fatalf("expected form_complete failure, got %v", err)
	}
	if pf.Fields["crew_count"] == "" {
		t.Fatalf("missing field not reported: %v", pf.Fields)
	}
	again, _ := f.svc.Get(userContext(submitterId, "OFFICER"), sub.ID)
	if again.Status != models.SubmissionStatusDraft || again.RowVersion != sub.RowVersion {
		t.Fatalf("failed transition must not write")
	}
}

func TestSubmitChecksAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := userContext(submitterId, "OFFICER")
	sub := f.create(t, completeData())

	_, err := f.svc.AddAttachment(ctx, sub.ID, &models.NewAttachment{
		FieldKey: "port", FileName: "crew.exe", MimeType: "application/x-msdownload", SizeBytes: 10,
	})
	expectKind(t, err, "FormValidation")

	if _, err := f.svc.AddAttachment(ctx, sub.ID, &models.NewAttachment{
		FieldKey: "port", FileName: "crew.pdf", MimeType: "application/pdf", SizeBytes: 1 << 30,
	}); err != nil {
		t.Fatalf("add attachment: %v", err)
	}
	_, err = f.svc.Submit(ctx, sub.ID)
	var pf *PreconditionFailedError
	if !errors.As(err, &pf) || pf.Name != PreconditionAttachmentsValid {
		t.Fatalf("expected attachments_valid failure, got %v", err)
	}
}

func TestUpdateDraftRules(t *testing.T) {
	f := newFixture(t)
	ctx := userContext(submitterId, "OFFICER")
	sub := f.create(t, nil)

	out, err := f.svc.UpdateDraft(ctx, sub.ID, map[string]interface{}{"port": "Antwerp"})
	if err != nil {
		t.Fatalf("partial draft save: %v", err)
	}
	if out.ContentHash == sub.ContentHash || out.RowVersion != sub.RowVersion+1 {
		t.Fatalf("save must rehash and bump the row version")
	}

	_, err = f.svc.UpdateDraft(ctx, sub.ID, map[string]interface{}{"unknown": 1})
	expectKind(t, err, "FormValidation")

	if _, err := f.svc.Submit(ctx, sub.ID); err == nil {
		t.Fatalf("incomplete draft should not submit")
	}
	if _, err := f.svc.UpdateDraft(ctx, sub.ID, completeData()); err != nil {
		t.Fatalf("complete draft: %v", err)
	}
	if _, err := f.svc.Submit(ctx, sub.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = f.svc.UpdateDraft(ctx, sub.ID, completeData())
	expectKind(t, err, "NotDraft")

	pending := f.pending(t)
	_, err = f.svc.UpdateDraft(ctx, pending.ID, completeData())
	expectKind(t, err, "LockedFormEdit")
}

func TestInvalidTransitionsWriteNothing(t *testing.T) {
	f := newFixture(t)
	ctx := userContext(submitterId, "OFFICER")
	sub := f.create(t, completeData())

	_, err := f.svc.StartSigning(ctx, sub.ID)
	expectKind(t, err, "InvalidTransition")
	_, err = f.svc.ReSign(ctx, sub.ID)
	expectKind(t, err, "InvalidTransition")
	_, err = f.svc.Archive(ctx, sub.ID)
	expectKind(t, err, "InvalidTransition")

	history, _ := models.ListStatusHistory(f.db.WithContext(ctx), sub.ID)
	if len(history) != 1 {
		t.Fatalf("only the create row expected, got %d", len(history))
	}
}

func TestArchiveIsTerminal(t *testing.T) {
	f := newFixture(t)
	sub := f.signed(t)
	ctx := userContext(submitterId, "OFFICER")
	archived, err := f.svc.Archive(ctx, sub.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != models.SubmissionStatusArchived || !archived.IsLocked || archived.ArchivedAt == nil {
		t.Fatalf("unexpected archived row: %+v", archived)
	}
	acts, _ := f.svc.AvailableActions(ctx, sub.ID)
	if len(acts) != 0 {
		t.Fatalf("archived submission has actions %v", acts)
	}
}

func TestStaleSubmissionConflicts(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	stale := *sub

	f.sign(t, sub.ID, masterId, "MASTER", 1)

	who, _ := ContextIdentityProvider{}.CurrentSigner(userContext(chiefId, "CHIEF_OFFICER"))
	_, err := f.svc.Engine().ExecuteTransition(userContext(chiefId, "CHIEF_OFFICER"), &stale, ActionSign,
		&TransitionContext{Identity: who, Order: 2, Method: models.SignatureMethodAuth})
	expectKind(t, err, "ConcurrencyConflict")
}

func TestConcurrentSignSameSlot(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Sign(userContext(masterId, "MASTER"), sub.ID, 1, models.SignatureMethodAuth, "")
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures++
		if !errors.Is(err, ErrConcurrencyConflict) && !errors.Is(err, ErrAlreadySigned) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one failure, got %d (%v)", failures, errs)
	}
	sigs, _ := models.ListAcceptedSignatures(f.db.WithContext(userContext(masterId, "MASTER")), sub.ID)
	if len(sigs) != 1 {
		t.Fatalf("expected exactly one signature, got %d", len(sigs))
	}
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	sub := f.create(t, completeData())
	out, err := f.svc.Submit(userContext(submitterId, "OFFICER"), sub.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Status != models.SubmissionStatusSubmitted {
		t.Fatalf("unexpected status %s", out.Status)
	}
}

func TestSubmissionKeepsTemplateVersion(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, completeData())

	v2 := berthChecklist()
	v2.FormSchema.Fields = append(v2.FormSchema.Fields, models.FieldSpec{Key: "pilot", Label: "Pilot", Kind: models.FieldKindText, Required: true})
	published, err := NewTemplateRegistry(f.db).Publish(userContext(1, "ADMIN"), v2)
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}
	if published.Version != 2 {
		t.Fatalf("expected version 2, got %d", published.Version)
	}

	out, err := f.svc.Submit(userContext(submitterId, "OFFICER"), sub.ID)
	if err != nil {
		t.Fatalf("v1 submission must validate against v1: %v", err)
	}
	if out.TemplateVersion != 1 {
		t.Fatalf("template version changed to %d", out.TemplateVersion)
	}

	fresh := f.create(t, completeData())
	if fresh.TemplateVersion != 2 {
		t.Fatalf("new submissions bind the latest version, got %d", fresh.TemplateVersion)
	}
}

func TestCreateNumbersAndIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := userContext(submitterId, "OFFICER")
	in := CreateContext{ScopeAbbr: "mvk", Year: 2026, IdempotencyKey: "req-1"}

	first, err := f.svc.Create(ctx, f.template.TemplateId, in, completeData())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.SubmissionNumber != "ISM-BERTH-MVK-2026-0001" {
		t.Fatalf("unexpected number %s", first.SubmissionNumber)
	}
	if first.Status != models.SubmissionStatusDraft || first.RowVersion != 1 {
		t.Fatalf("unexpected new submission: %+v", first)
	}

	again, err := f.svc.Create(ctx, f.template.TemplateId, in, completeData())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("idempotent create returned %d, want %d", again.ID, first.ID)
	}

	in.IdempotencyKey = "req-2"
	second, err := f.svc.Create(ctx, f.template.TemplateId, in, nil)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.SubmissionNumber != "ISM-BERTH-MVK-2026-0002" {
		t.Fatalf("unexpected number %s", second.SubmissionNumber)
	}

	_, err = f.svc.Create(ctx, f.template.TemplateId, CreateContext{ScopeAbbr: "mv k"}, nil)
	if err == nil {
		t.Fatalf("invalid scope abbreviation accepted")
	}
}

func TestCreateRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := setCompany(userContext(submitterId, "OFFICER"), "")
	_, err := f.svc.Create(ctx, f.template.TemplateId, CreateContext{ScopeAbbr: "MVK"}, nil)
	expectKind(t, err, "IdentityRequired")
}

func TestOtherCompanyCannotSeeSubmission(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, completeData())
	other := setCompany(userContext(submitterId, "OFFICER"), "fleet-2")
	_, err := f.svc.Get(other, sub.ID)
	if !IsNotFound(err) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
}

func TestSignaturesRecordTime(t *testing.T) {
	f := newFixture(t)
	sub := f.pending(t)
	before := time.Now().UTC().Add(-time.Second)
	f.sign(t, sub.ID, masterId, "MASTER", 1)
	sigs, _ := models.ListAcceptedSignatures(f.db.WithContext(userContext(masterId, "MASTER")), sub.ID)
	if len(sigs) != 1 || sigs[0].SignedAt.Before(before) || sigs[0].SigningRound != 1 {
		t.Fatalf("unexpected signature row: %+v", sigs)
	}
}
