package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	SheetSubmissions = "Submissions"
	SheetSignatures  = "Signatures"
	SheetHistory     = "History"
)

var (
	submissionHeadings = []string{"SubmissionNumber", "TemplateCode", "TemplateVersion", "Status", "Locked", "SigningRound", "ContentHash", "HashVerified", "CreatedBy", "SubmittedAt", "SignedAt", "ArchivedAt"}
	signatureHeadings  = []string{"SubmissionNumber", "Order", "Role", "SignerId", "SignerName", "Action", "Method", "Round", "SignedAt", "SupersededAt", "RejectionReason", "ContentHash"}
	historyHeadings    = []string{"SubmissionNumber", "Action", "From", "To", "UserId", "UserName", "Reason", "ContentHash", "CorrelationId", "At"}
)

// AuditWorkbook writes every submission matching filter, with its full signature and
// status trail, into a three sheet workbook. ctx must carry the company scope.
func AuditWorkbook(ctx context.Context, db *gorm.DB, filter models.SubmissionFilter) (*excelize.File, error) {
	subs, err := models.ListSubmissions(ctx, db, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSubmissions); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetSignatures, SheetHistory} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	if err := writeRow(f, SheetSubmissions, 1, toCells(submissionHeadings)); err != nil {
		return nil, err
	}
	if err := writeRow(f, SheetSignatures, 1, toCells(signatureHeadings)); err != nil {
		return nil, err
	}
	if err := writeRow(f, SheetHistory, 1, toCells(historyHeadings)); err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx)
	subRow, sigRow, histRow := 2, 2, 2
	for _, s := range subs {
		match, _, err := s.VerifyContentHash()
		if err != nil {
			return nil, err
		}
		if err := writeRow(f, SheetSubmissions, subRow, []interface{}{
			s.SubmissionNumber, s.TemplateCode, s.TemplateVersion, string(s.Status), s.IsLocked,
			s.SigningRound, s.ContentHash, match, s.CreatedByName,
			formatTime(s.SubmittedAt), formatTime(s.SignedAt), formatTime(s.ArchivedAt),
		}); err != nil {
			return nil, err
		}
		subRow++

		sigs, err := models.ListSignatures(tx, s.ID)
		if err != nil {
			return nil, err
		}
		for _, sig := range sigs {
			reason := ""
			if sig.RejectionReason != nil {
				reason = *sig.RejectionReason
			}
			if err := writeRow(f, SheetSignatures, sigRow, []interface{}{
				s.SubmissionNumber, sig.Order, sig.Role, sig.SignerId, sig.SignerName, string(sig.Action),
				string(sig.Method), sig.SigningRound, formatTime(&sig.SignedAt), formatTime(sig.SupersededAt),
				reason, sig.ContentHash,
			}); err != nil {
				return nil, err
			}
			sigRow++
		}

		history, err := models.ListStatusHistory(tx, s.ID)
		if err != nil {
			return nil, err
		}
		for _, h := range history {
			if err := writeRow(f, SheetHistory, histRow, []interface{}{
				s.SubmissionNumber, h.Action, string(h.FromStatus), string(h.ToStatus), h.UserId, h.UserName,
				h.Reason, h.ContentHash, h.CorrelationId, formatTime(&h.CreatedAt),
			}); err != nil {
				return nil, err
			}
			histRow++
		}
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toCells(headings []string) []interface{} {
	out := make([]interface{}, len(headings))
	for i, h := range headings {
		out[i] = h
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
