package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/config"
	"github.com/alnah/go-voicenote/internal/format"
	"github.com/alnah/go-voicenote/internal/interrupt"
	"github.com/alnah/go-voicenote/internal/outbox"
	"github.com/alnah/go-voicenote/internal/transcribe"
	"github.com/alnah/go-voicenote/internal/upload"
)

// recordOptions holds the validated options for the record command.
type recordOptions struct {
	output   string
	save     bool
	folder   string
	caption  bool
	language string
	prompt   string
}

// RecordCmd creates the record command.
// The env parameter provides injectable dependencies for testing.
func RecordCmd(env *Env) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note and upload it",
		Long: `Record a voice note from the default microphone and upload it to the
configured storage backend. The public URL is printed on stdout.

Press Ctrl+C to stop: the note is finalized and uploaded. Press Ctrl+C a
second time to discard it. Recording stops on its own at max-duration.

Notes that fail to upload are kept in the outbox; send them later with
"voicenote retry".`,
		Example: `  voicenote record                          # Upload to the configured backend
  voicenote record --save                   # Also keep a copy in output-dir
  voicenote record -o standup.webm          # Keep a copy under this name
  voicenote record --caption --language fr  # Print a transcript after upload`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), env, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Keep a local copy at this path")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Keep a local copy in output-dir under the uploaded name")
	cmd.Flags().StringVar(&opts.folder, "folder", "", "Upload folder (default: upload-folder from config)")
	cmd.Flags().BoolVar(&opts.caption, "caption", false, "Transcribe the note after upload (needs "+EnvOpenAIAPIKey+")")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Caption language (e.g. en, fr, pt-BR)")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Vocabulary hint for the caption")

	return cmd
}

// runRecord records one voice note, gates it and uploads it.
func runRecord(ctx context.Context, env *Env, opts recordOptions) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	if opts.folder == "" {
		opts.folder = cfg.UploadFolder
	}

	// Fail before recording rather than after the upload.
	apiKey := env.Getenv(EnvOpenAIAPIKey)
	if opts.caption && apiKey == "" {
		return fmt.Errorf("%w (set %s)", transcribe.ErrAPIKeyMissing, EnvOpenAIAPIKey)
	}

	uploader, closer, err := env.UploaderFactory.NewUploader(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	a, err := captureNote(ctx, env, cfg)
	if err != nil {
		return err
	}

	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = upload.DefaultMinBytes
	}
	gate := upload.NewGate(uploader,
		upload.WithFolder(opts.folder),
		upload.WithMinBytes(minBytes),
		upload.WithNow(env.Now),
		upload.WithLogger(env.Logger),
	)
	if err := gate.Check(a); err != nil {
		return err
	}
	f := gate.File(a)

	if opts.output != "" || opts.save {
		path := config.ResolveOutputPath(opts.output, config.ExpandPath(cfg.OutputDir), f.Name)
		warnExtensionMismatch(env.Stderr, path, a.Extension())
		if err := writeFileAtomic(path, f.Data); err != nil {
			return err
		}
		fmt.Fprintf(env.Stderr, "Saved: %s\n", path)
	}

	fmt.Fprintln(env.Stderr, "Uploading...")
	url, err := gate.Send(ctx, f)
	if err != nil {
		return keepForRetry(ctx, env, cfg, f, gate.Folder(), a.DurationSeconds(), err)
	}
	fmt.Fprintln(env.Stdout, url)

	if opts.caption {
		writeCaption(ctx, env, apiKey, f, transcribe.Options{Language: opts.language, Prompt: opts.prompt})
	}
	return nil
}

// captureNote runs one capture session until the recording resolves.
// The first interrupt stops it; the second discards it.
func captureNote(ctx context.Context, env *Env, cfg config.Config) (*capture.Audio, error) {
	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	deps, err := env.CaptureFactory.NewCapture(ctx, ffmpegPath, env.Logger)
	if err != nil {
		return nil, err
	}

	maxDuration := cfg.MaxDuration
	if maxDuration <= 0 {
		maxDuration = capture.DefaultMaxDuration
	}
	settleDelay := cfg.SettleDelay
	if settleDelay <= 0 {
		settleDelay = capture.DefaultSettleDelay
	}
	maxLabel := format.Elapsed(int(maxDuration / time.Second))

	session, err := capture.NewSession(deps.Devices, deps.Encoders, deps.Prober,
		capture.WithPrimer(deps.Primer),
		capture.WithClock(env.Clock),
		capture.WithLogger(env.Logger),
		capture.WithNotifier(capture.NotifierFunc(func(msg string) {
			fmt.Fprintf(env.Stderr, "\n%s\n", msg)
		})),
		capture.WithOnElapsed(func(seconds int) {
			fmt.Fprintf(env.Stderr, "\r  %s / %s", format.Elapsed(seconds), maxLabel)
		}),
		capture.WithMaxDuration(maxDuration),
		capture.WithSettleDelay(settleDelay),
	)
	if err != nil {
		return nil, err
	}

	handler, recCtx := env.Interrupts.NewHandler(ctx, interrupt.Options{
		OnStop:  func() { _ = session.Stop() },
		OnAbort: func() { _ = session.Close() },
		Stderr:  env.Stderr,
	})
	defer handler.Stop()

	if err := session.Start(recCtx); err != nil {
		return nil, sessionError(err)
	}
	fmt.Fprintf(env.Stderr, "Recording %s... (press Ctrl+C to stop, max %s)\n", session.Choice().MIMEType, maxLabel)

	// Close resolves the completion, so ctx is enough to wait on.
	a, err := session.Wait(ctx)
	fmt.Fprintln(env.Stderr)
	if handler.Outcome() == interrupt.Abort {
		// A finalizing session completes anyway; the user asked to drop it.
		return nil, reported(capture.ErrAborted)
	}
	if err != nil {
		return nil, sessionError(err)
	}

	fmt.Fprintf(env.Stderr, "Recorded %s (%s, %s)\n",
		format.Elapsed(a.DurationSeconds()), format.Size(a.Len()), a.MIMEType())
	return a, nil
}

// sessionError marks failures the session already announced through its
// notifier.
func sessionError(err error) error {
	if errors.Is(err, capture.ErrPermissionDenied) ||
		errors.Is(err, capture.ErrDeviceUnavailable) ||
		errors.Is(err, capture.ErrEncoder) {
		return reported(err)
	}
	return err
}

// keepForRetry stores a note whose upload failed and tells the user how
// to send it later. The upload error is returned already reported.
func keepForRetry(ctx context.Context, env *Env, cfg config.Config, f upload.File, folder string, seconds int, cause error) error {
	box, err := openOutbox(ctx, env, cfg)
	if err != nil {
		return notKept(env, cause, err)
	}
	defer func() { _ = box.Close() }()

	id, err := box.Save(ctx, outbox.Entry{
		Name:            f.Name,
		MIMEType:        f.MIMEType,
		Folder:          folder,
		DurationSeconds: float64(seconds),
		LastError:       failureReason(cause),
		Data:            f.Data,
	})
	if err != nil {
		return notKept(env, cause, err)
	}

	fmt.Fprintln(env.Stderr, upload.Message(cause))
	fmt.Fprintf(env.Stderr, "Kept as #%d. Run \"voicenote retry %d\" to upload it again.\n", id, id)
	return reported(cause)
}

// notKept reports an upload failure whose note could not be stored.
func notKept(env *Env, cause, err error) error {
	env.Logger.Error("keep voice note", zap.Error(err))
	fmt.Fprintf(env.Stderr, "The voice note could not be uploaded or kept: %v\n", err)
	return reported(errors.Join(cause, err))
}

// writeCaption transcribes the uploaded note. Failures are warnings: the
// note itself is already delivered.
func writeCaption(ctx context.Context, env *Env, apiKey string, f upload.File, opts transcribe.Options) {
	fmt.Fprintln(env.Stderr, "Transcribing...")
	captioner := env.CaptionerFactory.NewCaptioner(apiKey, env.Logger)
	text, err := captioner.Caption(ctx, f.Name, f.Data, opts)
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: caption failed: %v\n", err)
		return
	}
	fmt.Fprintln(env.Stdout, text)
}
