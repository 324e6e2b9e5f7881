package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alnah/go-voicenote/internal/apierr"
)

// Compile-time interface implementation check.
var _ Uploader = (*S3Uploader)(nil)

// s3API is the subset of *s3.Client used by S3Uploader.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores files in an S3 bucket.
type S3Uploader struct {
	client  s3API
	bucket  string
	baseURL string
}

// NewS3Uploader creates an S3Uploader using the default AWS credential
// chain. baseURL overrides the virtual-hosted bucket URL, for CDNs and
// S3-compatible stores.
func NewS3Uploader(ctx context.Context, bucket, baseURL string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return newS3Uploader(s3.NewFromConfig(cfg), bucket, baseURL), nil
}

func newS3Uploader(client s3API, bucket, baseURL string) *S3Uploader {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Uploader{client: client, bucket: bucket, baseURL: baseURL}
}

// Upload puts f at folder/name.
func (u *S3Uploader) Upload(ctx context.Context, f File, folder string) (string, error) {
	key := objectKey(folder, f.Name)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(f.Data),
		ContentType:   aws.String(f.MIMEType),
		ContentLength: aws.Int64(int64(len(f.Data))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, classifyStatusError(err))
	}
	return joinURL(u.baseURL, key), nil
}

// classifyStatusError attaches an apierr sentinel to SDK errors that carry
// an HTTP status code.
func classifyStatusError(err error) error {
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		if sentinel := apierr.FromStatus(status.HTTPStatusCode(), ""); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}
	return err
}
