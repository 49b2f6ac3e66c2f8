package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrAlreadySigned       = errors.New("signature slot already signed")
	ErrNotAuthorizedSigner = errors.New("caller is not the required signer for this slot")
	ErrNotSigned           = errors.New("submission is not signed")
	ErrNotPending          = errors.New("submission is not pending signature")
	ErrNotDraft            = errors.New("submission is not a draft")
	ErrConcurrencyConflict = errors.New("submission changed concurrently")
	ErrLockedFormEdit      = errors.New("form is locked")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrIdentityRequired    = errors.New("signer identity is required")

	// ErrSigningOutOfOrder is a NotAuthorizedSigner case: an earlier mandatory slot is still open.
	ErrSigningOutOfOrder = fmt.Errorf("%w: earlier mandatory signers have not signed", ErrNotAuthorizedSigner)
)

// PreconditionFailedError names the first unmet precondition of a transition.
type PreconditionFailedError struct {
	Name   string
	Detail string
	// Fields is set for form_complete: the offending field keys and why.
	Fields map[string]string
}

func (e *PreconditionFailedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("precondition %s failed: %s", e.Name, e.Detail)
	}
	return fmt.Sprintf("precondition %s failed", e.Name)
}

func (e *PreconditionFailedError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

// FormValidationError carries the per-field problems found while validating form data.
type FormValidationError struct {
	Fields map[string]string
}

func (e *FormValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "form data is invalid: " + strings.Join(keys, ", ")
}

// ErrorKind is the stable name of an error for API responses.
func ErrorKind(err error) string {
	var pf *PreconditionFailedError
	var fv *FormValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pf):
		return "PreconditionFailed"
	case errors.As(err, &fv):
		return "FormValidation"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrAlreadySigned):
		return "AlreadySigned"
	case errors.Is(err, ErrNotAuthorizedSigner):
		return "NotAuthorizedSigner"
	case errors.Is(err, ErrNotSigned):
		return "NotSigned"
	case errors.Is(err, ErrNotPending):
		return "NotPending"
	case errors.Is(err, ErrNotDraft):
		return "NotDraft"
	case errors.Is(err, ErrConcurrencyConflict):
		return "ConcurrencyConflict"
	case errors.Is(err, ErrLockedFormEdit):
		return "LockedFormEdit"
	case errors.Is(err, ErrIdentityRequired):
		return "IdentityRequired"
	case errors.Is(err, ErrIdempotencyInProgress):
		return "IdempotencyInProgress"
	}
	return "Internal"
}
