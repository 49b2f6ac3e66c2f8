package models

import (
	"errors"
	"strings"
)

type SubmissionStatus string

const (
	SubmissionStatusDraft            SubmissionStatus = "DRAFT"
	SubmissionStatusSubmitted        SubmissionStatus = "SUBMITTED"
	SubmissionStatusPendingSignature SubmissionStatus = "PENDING_SIGNATURE"
	SubmissionStatusSigned           SubmissionStatus = "SIGNED"
	SubmissionStatusRejected         SubmissionStatus = "REJECTED"
	SubmissionStatusAmended          SubmissionStatus = "AMENDED"
	SubmissionStatusArchived         SubmissionStatus = "ARCHIVED"
)

var AllSubmissionStatuses = []SubmissionStatus{
	SubmissionStatusDraft,
	SubmissionStatusSubmitted,
	SubmissionStatusPendingSignature,
	SubmissionStatusSigned,
	SubmissionStatusRejected,
	SubmissionStatusAmended,
	SubmissionStatusArchived,
}

func (s SubmissionStatus) IsValid() bool {
	for _, v := range AllSubmissionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports a status with no outgoing transitions.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionStatusArchived
}

func ParseSubmissionStatus(raw string) (SubmissionStatus, error) {
	s := SubmissionStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", errors.New("invalid submission status")
	}
	return s, nil
}

type SignatureAction string

const (
	SignatureActionSigned    SignatureAction = "SIGNED"
	SignatureActionRejected  SignatureAction = "REJECTED"
	SignatureActionDelegated SignatureAction = "DELEGATED"
)

func (a SignatureAction) IsValid() bool {
	switch a {
	case SignatureActionSigned, SignatureActionRejected, SignatureActionDelegated:
		return true
	}
	return false
}

type SignatureMethod string

const (
	// SignatureMethodPin requires the signer's bcrypt-hashed signing PIN.
	SignatureMethodPin SignatureMethod = "PIN"
	// SignatureMethodAuth relies on the verified session of the caller.
	SignatureMethodAuth SignatureMethod = "AUTH"
	// SignatureMethodDrawn is a drawn signature captured on a tablet; it still needs a verified session.
	SignatureMethodDrawn SignatureMethod = "DRAWN"
)

func (m SignatureMethod) IsValid() bool {
	switch m {
	case SignatureMethodPin, SignatureMethodAuth, SignatureMethodDrawn:
		return true
	}
	return false
}

func ParseSignatureMethod(raw string) (SignatureMethod, error) {
	m := SignatureMethod(strings.ToUpper(strings.TrimSpace(raw)))
	if !m.IsValid() {
		return "", errors.New("invalid signature method")
	}
	return m, nil
}

type Recurrence string

const (
	RecurrenceNone      Recurrence = "NONE"
	RecurrencePerVoyage Recurrence = "PER_VOYAGE"
	RecurrenceDaily     Recurrence = "DAILY"
	RecurrenceWeekly    Recurrence = "WEEKLY"
	RecurrenceMonthly   Recurrence = "MONTHLY"
	RecurrenceQuarterly Recurrence = "QUARTERLY"
	RecurrenceAnnual    Recurrence = "ANNUAL"
)

func (r Recurrence) IsValid() bool {
	switch r {
	case RecurrenceNone, RecurrencePerVoyage, RecurrenceDaily, RecurrenceWeekly,
		RecurrenceMonthly, RecurrenceQuarterly, RecurrenceAnnual:
		return true
	}
	return false
}
