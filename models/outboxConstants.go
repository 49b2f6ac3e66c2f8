package models

// Publish statuses for NotificationOutbox.PublishStatus (stored as strings).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Notification kinds published to the notification service.
const (
	NotificationKindFirstSigner      = "NOTIFY_FIRST_SIGNER"
	NotificationKindNextSigner       = "NOTIFY_NEXT_SIGNER"
	NotificationKindSubmitter        = "NOTIFY_SUBMITTER"
	NotificationKindReSignRequest    = "REQUEST_RE_SIGNATURES"
	NotificationKindSigningCompleted = "SIGNING_COMPLETED"
	NotificationKindDelegated        = "SIGNATURE_DELEGATED"
)
