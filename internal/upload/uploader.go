package upload

import (
	"context"
	"path"
	"strings"
)

// File is the named artifact handed to an Uploader.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Uploader persists a file under folder and returns its public URL.
// An empty URL with a nil error is treated as a failure.
type Uploader interface {
	Upload(ctx context.Context, f File, folder string) (publicURL string, err error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, f File, folder string) (string, error)

// Upload calls fn.
func (fn UploaderFunc) Upload(ctx context.Context, f File, folder string) (string, error) {
	return fn(ctx, f, folder)
}

// objectKey joins folder and name into a slash-separated key without a
// leading slash.
func objectKey(folder, name string) string {
	return strings.TrimPrefix(path.Join("/", folder, name), "/")
}

// joinURL appends key to base with exactly one slash between them.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
