package workflow

import (
	"sort"
	"strings"

	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChangedFields returns the sorted top-level keys whose values differ between prev and next,
// compared structurally (key order and number formatting do not count as changes).
func ChangedFields(prev map[string]interface{}, next map[string]interface{}) []string {
	keys := make(map[string]bool, len(prev)+len(next))
	for k := range prev {
		keys[k] = true
	}
	for k := range next {
		keys[k] = true
	}
	out := make([]string, 0)
	for k := range keys {
		a, inPrev := prev[k]
		b, inNext := next[k]
		if inPrev != inNext || !utils.CanonicalEqual(a, b) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

type AmendmentRequest struct {
	NewFormData map[string]interface{}
	Reason      string
	Approval    *DPAApproval
}

// AmendmentManager records post-signature changes. Every amendment requires a full
// re-signature by all mandatory signers.
type AmendmentManager struct{}

// CreateAmendment persists the amendment row for sub inside tx and returns it with the new hash.
// The caller updates the submission itself.
func (m *AmendmentManager) CreateAmendment(tx *gorm.DB, sub *models.Submission, req AmendmentRequest, who Identity) (*models.Amendment, error) {
	if sub.Status != models.SubmissionStatusSigned {
		return nil, ErrNotSigned
	}
	number, err := models.NextAmendmentNumber(tx, sub.ID)
	if err != nil {
		return nil, err
	}
	newHash, err := utils.Digest(req.NewFormData)
	if err != nil {
		return nil, err
	}

	amendment := models.Amendment{
		CompanyId:           sub.CompanyId,
		SubmissionId:        sub.ID,
		AmendmentNumber:     number,
		Reason:              strings.TrimSpace(req.Reason),
		PreviousData:        datatypes.JSONMap(sub.Data()),
		NewData:             datatypes.JSONMap(req.NewFormData),
		ChangedFields:       datatypes.JSONSlice[string](ChangedFields(sub.Data(), req.NewFormData)),
		RequiresReSignature: true,
		PreviousHash:        sub.ContentHash,
		NewHash:             newHash,
		CreatedBy:           who.UserId,
		CreatedByName:       who.Name,
	}
	if who.HasRole(RoleDPA) {
		amendment.ApprovedById = who.UserId
		amendment.ApprovedBy = who.Name
	}
	if req.Approval != nil {
		amendment.ApprovalReference = strings.TrimSpace(req.Approval.Reference)
	}
	if err := tx.Create(&amendment).Error; err != nil {
		return nil, err
	}
	return &amendment, nil
}
