package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/sirupsen/logrus"
)

const uploadURLTTL = 15 * time.Minute

type uploadSignRequest struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

type uploadSignResponse struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"object_key"`
	ExpiresAt string            `json:"expires_at"`
}

// signAttachmentUpload hands out a V4 signed PUT url. The client registers the object
// afterwards through POST /submissions/:id/attachments.
func (a *api) signAttachmentUpload(c *gin.Context) {
	logger := config.GetLogger()
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req uploadSignRequest
	if !bindJSON(c, &req) {
		return
	}
	req.FileName = strings.TrimSpace(req.FileName)
	req.MimeType = strings.ToLower(strings.TrimSpace(req.MimeType))
	if req.FileName == "" || req.MimeType == "" || req.SizeBytes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": "file_name, mime_type and size_bytes are required"})
		return
	}
	if req.SizeBytes > config.MaxAttachmentBytes() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": fmt.Sprintf("file exceeds %d bytes", config.MaxAttachmentBytes())})
		return
	}
	if !models.IsAllowedAttachmentMimeType(req.MimeType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": "unsupported file type"})
		return
	}

	ctx := c.Request.Context()
	// also enforces tenant visibility of the submission
	sub, err := a.svc.Get(ctx, id)
	if err != nil {
		writeError(c, "signAttachmentUpload", err)
		return
	}

	objectKey := models.AttachmentObjectKey(sub.CompanyId, sub.ID, uuid.New().String()+"-"+path.Base(req.FileName))
	client, err := config.GetStorageClient(ctx)
	if err != nil {
		logUploadError(logger, err, c)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "StorageUnavailable"})
		return
	}
	expiresAt := time.Now().Add(uploadURLTTL)
	url, err := client.Bucket(config.AttachmentBucket()).SignedURL(objectKey, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: req.MimeType,
		Expires:     expiresAt,
	})
	if err != nil {
		logUploadError(logger, err, c)
		message := "failed to sign upload"
		if !strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
			message = fmt.Sprintf("failed to sign upload: %v", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal", "message": message})
		return
	}

	logger.WithFields(logrus.Fields{
		"company_id":    sub.CompanyId,
		"submission_id": sub.ID,
		"mime_type":     req.MimeType,
		"size":          req.SizeBytes,
		"object_key":    objectKey,
	}).Info("[attachment.sign]")

	c.JSON(http.StatusOK, gin.H{"data": uploadSignResponse{
		UploadURL: url,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": req.MimeType},
		ObjectKey: objectKey,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}})
}

// downloadAttachment streams an attachment's bytes back through the API.
func (a *api) downloadAttachment(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	attachmentId, ok := pathId(c, "attachmentId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var att models.SubmissionAttachment
	if err := a.db.WithContext(ctx).
		Where("submission_id = ? AND id = ?", id, attachmentId).
		First(&att).Error; err != nil {
		writeError(c, "downloadAttachment", err)
		return
	}

	client, err := config.GetStorageClient(ctx)
	if err != nil {
		logUploadError(config.GetLogger(), err, c)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "StorageUnavailable"})
		return
	}
	reader, err := client.Bucket(config.AttachmentBucket()).Object(att.ObjectKey).NewReader(ctx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NotFound", "message": "object not found"})
		return
	}
	defer reader.Close()

	c.Writer.Header().Set("Content-Type", att.MimeType)
	c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	if size := reader.Attrs.Size; size > 0 {
		c.Writer.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

func logUploadError(logger *logrus.Logger, err error, c *gin.Context) {
	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	logger.WithFields(logrus.Fields{
		"error":          err.Error(),
		"path":           c.FullPath(),
		"correlation_id": correlationId,
	}).Error("[attachment.error]")
}
