package workflow

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
)

// AttachmentVerifier confirms an attachment's bytes exist in external storage as described.
type AttachmentVerifier interface {
	Verify(ctx context.Context, a models.SubmissionAttachment) error
}

// GCSAttachmentVerifier checks object existence and size in the attachment bucket.
type GCSAttachmentVerifier struct {
	Bucket string
}

func NewGCSAttachmentVerifier() *GCSAttachmentVerifier {
	return &GCSAttachmentVerifier{Bucket: config.AttachmentBucket()}
}

func (v *GCSAttachmentVerifier) Verify(ctx context.Context, a models.SubmissionAttachment) error {
	client, err := config.GetStorageClient(ctx)
	if err != nil {
		return err
	}
	attrs, err := client.Bucket(v.Bucket).Object(a.ObjectKey).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("attachment %s not found in storage", a.FileName)
		}
		return err
	}
	if attrs.Size != a.SizeBytes {
		return fmt.Errorf("attachment %s size mismatch (stored %d, declared %d)", a.FileName, attrs.Size, a.SizeBytes)
	}
	return nil
}

// checkAttachment applies the local rules every attachment must meet.
func checkAttachment(a models.SubmissionAttachment, maxBytes int64) error {
	if !models.IsAllowedAttachmentMimeType(a.MimeType) {
		return fmt.Errorf("attachment %s has unsupported type %s", a.FileName, a.MimeType)
	}
	if a.SizeBytes <= 0 || a.SizeBytes > maxBytes {
		return fmt.Errorf("attachment %s size %d is outside 1..%d bytes", a.FileName, a.SizeBytes, maxBytes)
	}
	return nil
}
