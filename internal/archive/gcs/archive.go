// Package gcs archives images to a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/everylotbot/everylot/internal/archive"
	"github.com/everylotbot/everylot/internal/everylot"
)

// Config captures the parameters required to archive to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Archive writes images to a configured GCS bucket.
type Archive struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed archive.
func New(client *storage.Client, cfg Config) (*Archive, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Archive{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Save uploads the image and returns a gs:// URI.
func (a *Archive) Save(ctx context.Context, lot everylot.Lot, img *everylot.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("image is required")
	}

	object := path.Join(a.prefix, archive.ObjectName(lot, img))
	writer := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	if img.MIME != "" {
		writer.ContentType = img.MIME
	}
	if _, err := io.Copy(writer, bytes.NewReader(img.Bytes)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}
