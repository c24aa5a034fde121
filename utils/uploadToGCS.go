package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const sourceArchivePrefix = "batchImports"

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (service account / GOOGLE_APPLICATION_CREDENTIALS).
	// Set GCS_CREDENTIALS_JSON to pass explicit JSON (e.g. locally).
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GCSArchiver keeps a copy of every uploaded controller export.
type GCSArchiver struct {
	Bucket string
}

// NewGCSArchiverFromEnv returns nil when GCS_BUCKET is not set.
func NewGCSArchiverFromEnv() *GCSArchiver {
	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return nil
	}
	return &GCSArchiver{Bucket: bucket}
}

// SourceObjectKey builds batchImports/<uuid>_<file name>.
func SourceObjectKey(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.csv"
	}
	return path.Join(sourceArchivePrefix, uuid.NewString()+"_"+base)
}

func (a *GCSArchiver) Archive(ctx context.Context, fileName string, data []byte) (string, error) {
	if a == nil || a.Bucket == "" {
		return "", errors.New("GCS_BUCKET is required")
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	objectName := SourceObjectKey(fileName)
	contentType := http.DetectContentType(data)
	if strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else if strings.HasPrefix(contentType, "text/plain") {
		contentType = "text/csv"
	}

	wc := client.Bucket(a.Bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload file to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %v", err)
	}
	return objectName, nil
}
