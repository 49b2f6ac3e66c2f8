package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var (
	storageClient   *storage.Client
	storageClientMu sync.Mutex
)

// AttachmentBucket is the GCS bucket holding submission attachments.
func AttachmentBucket() string {
	return strings.TrimSpace(os.Getenv("GCS_BUCKET"))
}

// GetStorageClient lazily creates the GCS client. GCS_CREDENTIALS_JSON overrides ADC.
func GetStorageClient(ctx context.Context) (*storage.Client, error) {
	storageClientMu.Lock()
	defer storageClientMu.Unlock()
	if storageClient != nil {
		return storageClient, nil
	}
	if AttachmentBucket() == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}

	var (
		c   *storage.Client
		err error
	)
	if credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); credJSON != "" {
		c, err = storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		c, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, err
	}
	storageClient = c
	return storageClient, nil
}
