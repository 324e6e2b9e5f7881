package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/alnah/go-voicenote/internal/apierr"
)

// Compile-time interface implementation check.
var _ Uploader = (*GCSUploader)(nil)

// objectWriterFunc opens a writer for one object.
type objectWriterFunc func(ctx context.Context, bucket, key, contentType string) io.WriteCloser

// GCSUploader stores files in a Google Cloud Storage bucket.
type GCSUploader struct {
	newWriter objectWriterFunc
	bucket    string
	baseURL   string
	closer    io.Closer
}

// NewGCSUploader creates a GCSUploader using application default
// credentials.
func NewGCSUploader(ctx context.Context, bucket, baseURL string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	u := newGCSUploader(func(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
		w := client.Bucket(bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}, bucket, baseURL)
	u.closer = client
	return u, nil
}

func newGCSUploader(newWriter objectWriterFunc, bucket, baseURL string) *GCSUploader {
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSUploader{newWriter: newWriter, bucket: bucket, baseURL: baseURL}
}

// Upload writes f to folder/name. The object is committed on Close.
func (u *GCSUploader) Upload(ctx context.Context, f File, folder string) (string, error) {
	key := objectKey(folder, f.Name)
	w := u.newWriter(ctx, u.bucket, key, f.MIMEType)
	if _, err := w.Write(f.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", key, classifyGCSError(err))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs commit %s: %w", key, classifyGCSError(err))
	}
	return joinURL(u.baseURL, key), nil
}

// Close releases the underlying client.
func (u *GCSUploader) Close() error {
	if u.closer == nil {
		return nil
	}
	return u.closer.Close()
}

func classifyGCSError(err error) error {
	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("%w: %w", apierr.ErrBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", apierr.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return classifyStatusError(err)
	}
}
