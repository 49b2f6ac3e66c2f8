package workflow

import (
	"sort"

	"github.com/mmdatafocus/compliance_backend/models"
)

type CompletionResult struct {
	Complete        bool
	SignedMandatory int
	MandatoryCount  int
	// MissingOrders are the mandatory slots without an accepted SIGNED signature.
	MissingOrders []int
	Rejected      bool
}

// EvaluateCompletion decides whether a submission's accepted signatures satisfy its
// required signers: every mandatory order slot carries an accepted SIGNED action and no
// accepted REJECTED action exists. It only looks at its arguments.
func EvaluateCompletion(signatures []models.Signature, required []models.RequiredSigner) CompletionResult {
	signedOrders := make(map[int]bool)
	rejected := false
	for _, s := range signatures {
		if !s.IsAccepted() {
			continue
		}
		switch s.Action {
		case models.SignatureActionSigned:
			signedOrders[s.Order] = true
		case models.SignatureActionRejected:
			rejected = true
		}
	}

	res := CompletionResult{MandatoryCount: models.MandatoryCount(required), Rejected: rejected}
	counted := make(map[int]bool)
	for _, r := range required {
		if !r.IsMandatory || counted[r.Order] {
			continue
		}
		counted[r.Order] = true
		if signedOrders[r.Order] {
			res.SignedMandatory++
		} else {
			res.MissingOrders = append(res.MissingOrders, r.Order)
		}
	}
	sort.Ints(res.MissingOrders)
	res.Complete = !rejected && res.SignedMandatory >= res.MandatoryCount
	return res
}

// nextOpenSlot returns the lowest mandatory order not yet signed, 0 when none is open.
func nextOpenSlot(signatures []models.Signature, required []models.RequiredSigner) int {
	res := EvaluateCompletion(signatures, required)
	if len(res.MissingOrders) == 0 {
		return 0
	}
	return res.MissingOrders[0]
}
