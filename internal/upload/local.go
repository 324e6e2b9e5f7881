package upload

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Compile-time interface implementation check.
var _ Uploader = (*LocalUploader)(nil)

// LocalUploader stores files in a directory. The public URL is baseURL
// joined with the object key, or a file:// URL when baseURL is empty.
type LocalUploader struct {
	dir     string
	baseURL string
}

// NewLocalUploader creates a LocalUploader rooted at dir.
func NewLocalUploader(dir, baseURL string) *LocalUploader {
	return &LocalUploader{dir: dir, baseURL: baseURL}
}

// Upload writes f to dir/folder/name.
func (u *LocalUploader) Upload(ctx context.Context, f File, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := objectKey(folder, f.Name)
	dest := filepath.Join(u.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	if err := os.WriteFile(dest, f.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if u.baseURL != "" {
		return joinURL(u.baseURL, key), nil
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
