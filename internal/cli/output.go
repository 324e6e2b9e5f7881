package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-voicenote/internal/config"
)

// warnExtensionMismatch writes a warning to w if path has an extension
// other than ext. The local copy keeps the recorded container regardless
// of the name chosen.
func warnExtensionMismatch(w io.Writer, path, ext string) {
	got := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if got != "" && got != ext {
		_, _ = fmt.Fprintf(w, "Warning: audio is .%s regardless of .%s extension\n", ext, got)
	}
}

// writeFileAtomic writes content to path atomically.
// It fails if the file already exists (O_EXCL), preventing accidental overwrites.
// On write failure, the partial file is removed.
func writeFileAtomic(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil { // #nosec G301 -- user output dir
			return fmt.Errorf("cannot create output directory: %w", err)
		}
	}

	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("output file already exists: %s: %w", path, ErrOutputExists)
		}
		return fmt.Errorf("cannot create output file: %w", err)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		if _, err := f.Write(content); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}

	return nil
}

// outboxPath returns the configured outbox database, or the default one
// in the config directory when config could not be loaded.
func outboxPath(cfg config.Config) (string, error) {
	if cfg.OutboxPath != "" {
		return config.ExpandPath(cfg.OutboxPath), nil
	}
	d, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "outbox.db"), nil
}

// openOutbox opens the configured outbox.
func openOutbox(ctx context.Context, env *Env, cfg config.Config) (Outbox, error) {
	p, err := outboxPath(cfg)
	if err != nil {
		return nil, err
	}
	return env.OutboxOpener.Open(ctx, p)
}
