package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/go-voicenote/internal/apierr"
	"github.com/alnah/go-voicenote/internal/audio"
	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/cli"
	"github.com/alnah/go-voicenote/internal/config"
	"github.com/alnah/go-voicenote/internal/ffmpeg"
	"github.com/alnah/go-voicenote/internal/logging"
	"github.com/alnah/go-voicenote/internal/outbox"
	"github.com/alnah/go-voicenote/internal/transcribe"
	"github.com/alnah/go-voicenote/internal/upload"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitCapture    = 5
	ExitUpload     = 6
	ExitInterrupt  = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Create the CLI environment with production defaults.
	env := cli.DefaultEnv()

	var logCloser io.Closer
	rootCmd := newRootCmd(env, &logCloser)

	// Ctrl+C is handled per command: record turns it into stop and discard.
	err := rootCmd.ExecuteContext(context.Background())
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", cli.UserMessage(err))
		}
		os.Exit(exitCode(err))
	}
}

// newRootCmd builds the command tree. The log file is opened before any
// subcommand runs; its closer is stored in logCloser.
func newRootCmd(env *cli.Env, logCloser *io.Closer) *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:     "voicenote",
		Short:   "Record voice notes and upload them",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			dir, err := config.Dir()
			if err != nil {
				return
			}
			logger, closer, err := logging.New(filepath.Join(dir, logging.FileName), debug)
			if err != nil {
				fmt.Fprintf(env.Stderr, "Warning: logging disabled: %v\n", err)
				return
			}
			env.Logger = logger
			*logCloser = closer
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Write debug entries to the log file")

	// Subcommands.
	rootCmd.AddCommand(cli.RecordCmd(env))
	rootCmd.AddCommand(cli.ListCmd(env))
	rootCmd.AddCommand(cli.RetryCmd(env))
	rootCmd.AddCommand(cli.CodecCmd(env))
	rootCmd.AddCommand(cli.DevicesCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	return rootCmd
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Interrupts: a discarded recording or a canceled context.
	if errors.Is(err, capture.ErrAborted) || errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Usage errors (ExitUsage = 2): Cobra flag/arg parsing errors.
	// Cobra doesn't expose typed errors, so we check for known error message patterns.
	if isCobraUsageError(err) || errors.Is(err, cli.ErrInvalidID) {
		return ExitUsage
	}

	// Setup errors (ExitSetup = 3).
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, transcribe.ErrAPIKeyMissing) ||
		errors.Is(err, audio.ErrNoAudioDevice) || errors.Is(err, audio.ErrFFmpegTooOld) ||
		errors.Is(err, cli.ErrBucketMissing) ||
		errors.Is(err, cli.ErrInvalidBackend) || errors.Is(err, apierr.ErrAuthFailed) {
		return ExitSetup
	}

	// Validation errors (ExitValidation = 4).
	if errors.Is(err, config.ErrUnknownKey) || errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, upload.ErrEmptyOrShort) || errors.Is(err, cli.ErrOutputExists) ||
		errors.Is(err, outbox.ErrNotFound) {
		return ExitValidation
	}

	// Capture errors (ExitCapture = 5).
	if errors.Is(err, capture.ErrPermissionDenied) || errors.Is(err, capture.ErrDeviceUnavailable) ||
		errors.Is(err, capture.ErrEncoder) || errors.Is(err, capture.ErrBusy) {
		return ExitCapture
	}

	// Upload errors (ExitUpload = 6).
	if errors.Is(err, upload.ErrUploadFailed) {
		return ExitUpload
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// These patterns are stable across Cobra versions (tested with v1.8+).
// Cobra doesn't expose typed errors, so string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"unknown command",           // Subcommand doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
