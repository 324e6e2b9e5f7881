package upload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alnah/go-voicenote/internal/apierr"
)

// Compile-time interface implementation check.
var _ Uploader = (*RESTUploader)(nil)

// RESTUploader posts raw bytes to an object storage HTTP API of the form
// POST {endpoint}/{bucket}/{key}. The public URL is taken from a "url" or
// "publicUrl" field of the JSON response, else built from baseURL.
type RESTUploader struct {
	client   *resty.Client
	endpoint string
	bucket   string
	baseURL  string
}

// RESTOption configures a RESTUploader.
type RESTOption func(*RESTUploader)

// WithToken sets the bearer token.
func WithToken(token string) RESTOption {
	return func(u *RESTUploader) {
		if token != "" {
			u.client.SetAuthToken(token)
		}
	}
}

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) RESTOption {
	return func(u *RESTUploader) {
		u.client.SetTimeout(d)
	}
}

// NewRESTUploader creates a RESTUploader.
func NewRESTUploader(endpoint, bucket, baseURL string, opts ...RESTOption) (*RESTUploader, error) {
	if endpoint == "" {
		return nil, errors.New("rest: endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("rest: invalid endpoint: %w", err)
	}
	u := &RESTUploader{
		client:   resty.New().SetTimeout(60 * time.Second),
		endpoint: strings.TrimRight(endpoint, "/"),
		bucket:   bucket,
		baseURL:  baseURL,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

type restResponse struct {
	URL       string `json:"url"`
	PublicURL string `json:"publicUrl"`
}

// Upload posts f to the object API.
func (u *RESTUploader) Upload(ctx context.Context, f File, folder string) (string, error) {
	key := objectKey(bucketFolder(u.bucket, folder), f.Name)
	var out restResponse
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", f.MIMEType).
		SetHeader("x-upsert", "true").
		SetBody(f.Data).
		SetResult(&out).
		Post(u.endpoint + "/" + key)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Transport failures are treated as transient.
		return "", fmt.Errorf("rest post %s: %w: %w", key, apierr.ErrTimeout, err)
	}
	if err := apierr.FromStatus(resp.StatusCode(), resp.String()); err != nil {
		return "", fmt.Errorf("rest post %s: %w", key, err)
	}
	switch {
	case out.PublicURL != "":
		return out.PublicURL, nil
	case out.URL != "":
		return out.URL, nil
	case u.baseURL != "":
		return joinURL(u.baseURL, key), nil
	default:
		return "", nil
	}
}

func bucketFolder(bucket, folder string) string {
	if bucket == "" {
		return folder
	}
	return objectKey(bucket, folder)
}
