package config

import (
	"os"
	"strings"
)

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// RequireDPAApproval makes the amend transition demand an explicit approval by the
// Designated Person Ashore. Disable only for training tenants.
//
// Set via env:
// - REQUIRE_DPA_APPROVAL=false
func RequireDPAApproval() bool {
	return boolFromEnv("REQUIRE_DPA_APPROVAL", true)
}

// AllowRejectedEdits lets the submitter correct form data on a rejected (unlocked) submission
// before resubmitting it.
//
// Set via env:
// - ALLOW_REJECTED_EDITS=false
func AllowRejectedEdits() bool {
	return boolFromEnv("ALLOW_REJECTED_EDITS", true)
}

// MaxAttachmentBytes bounds a single attachment referenced by a submission.
func MaxAttachmentBytes() int64 {
	return int64(IntFromEnv("MAX_ATTACHMENT_BYTES", 20*1024*1024))
}
