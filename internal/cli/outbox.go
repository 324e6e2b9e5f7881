package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-voicenote/internal/config"
	"github.com/alnah/go-voicenote/internal/format"
	"github.com/alnah/go-voicenote/internal/upload"
)

// defaultRetryParallel is the number of concurrent uploads for retry.
const defaultRetryParallel = 3

// ListCmd creates the list command.
// Shows voice notes waiting in the outbox.
func ListCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List voice notes waiting to be uploaded",
		Long: `List the voice notes kept after a failed upload.

Send them again with "voicenote retry".`,
		Example: `  voicenote list`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), env)
		},
	}
}

// runList prints one line per stored note.
func runList(ctx context.Context, env *Env) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	box, err := openOutbox(ctx, env, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = box.Close() }()

	entries, err := box.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(env.Stderr, "No voice notes waiting.")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintf(env.Stdout, "#%d  %s  %s  %s  %s  attempts=%d\n",
			e.ID,
			e.CreatedAt.Format("2006-01-02 15:04"),
			format.Seconds(e.DurationSeconds),
			format.Size(e.Size),
			e.Name,
			e.Attempts,
		)
		if e.LastError != "" {
			fmt.Fprintf(env.Stdout, "     last error: %s\n", e.LastError)
		}
	}
	return nil
}

// retryOptions holds the options for the retry command.
type retryOptions struct {
	ids      []int64
	parallel int
}

// RetryCmd creates the retry command.
// Uploads stored voice notes again and removes the ones that succeed.
func RetryCmd(env *Env) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Upload voice notes kept after a failed upload",
		Long: `Upload voice notes from the outbox again.

Without arguments every stored note is retried. Notes that upload are
removed from the outbox; the others stay with their attempt count raised.`,
		Example: `  voicenote retry
  voicenote retry 3 7
  voicenote retry --parallel 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := retryOptions{parallel: parallel}
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("%w: %q", ErrInvalidID, arg)
				}
				opts.ids = append(opts.ids, id)
			}
			if opts.parallel < 1 {
				opts.parallel = 1
			}
			return runRetry(cmd.Context(), env, opts)
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", defaultRetryParallel, "Concurrent uploads")

	return cmd
}

// runRetry sends the selected notes through the upload gate.
func runRetry(ctx context.Context, env *Env, opts retryOptions) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	box, err := openOutbox(ctx, env, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = box.Close() }()

	ids := opts.ids
	if len(ids) == 0 {
		entries, err := box.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(env.Stderr, "No voice notes waiting.")
		return nil
	}

	uploader, closer, err := env.UploaderFactory.NewUploader(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	// Each note is independent: one failure must not cancel the others.
	urls := make([]string, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(opts.parallel)
	for i, id := range ids {
		g.Go(func() error {
			urls[i], errs[i] = retryOne(ctx, env, cfg, box, uploader, id)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, id := range ids {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(env.Stderr, "#%d: %s\n", id, UserMessage(errs[i]))
			continue
		}
		fmt.Fprintf(env.Stdout, "#%d %s\n", id, urls[i])
	}

	if failed > 0 {
		fmt.Fprintf(env.Stderr, "%d of %d voice notes still waiting.\n", failed, len(ids))
		return reported(fmt.Errorf("%d of %d retries: %w", failed, len(ids), upload.ErrUploadFailed))
	}
	return nil
}

// retryOne uploads a stored note and removes it on success. Failures are
// counted on the entry.
func retryOne(ctx context.Context, env *Env, cfg config.Config, box Outbox, uploader upload.Uploader, id int64) (string, error) {
	e, err := box.Get(ctx, id)
	if err != nil {
		return "", err
	}

	folder := e.Folder
	if folder == "" {
		folder = cfg.UploadFolder
	}
	gate := upload.NewGate(uploader,
		upload.WithFolder(folder),
		upload.WithLogger(env.Logger.With(zap.Int64("note", id))),
	)

	url, err := gate.Send(ctx, upload.File{Name: e.Name, MIMEType: e.MIMEType, Data: e.Data})
	if err != nil {
		if recErr := box.RecordFailure(ctx, id, failureReason(err)); recErr != nil {
			env.Logger.Warn("record retry failure", zap.Int64("note", id), zap.Error(recErr))
		}
		return "", err
	}
	if err := box.Delete(ctx, id); err != nil {
		env.Logger.Warn("remove uploaded note", zap.Int64("note", id), zap.Error(err))
	}
	return url, nil
}
