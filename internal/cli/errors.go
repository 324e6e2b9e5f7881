package cli

import (
	"errors"

	"github.com/alnah/go-voicenote/internal/apierr"
	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/upload"
)

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrBucketMissing indicates a cloud backend was selected without a bucket.
	ErrBucketMissing = errors.New("upload backend requires a bucket (voicenote config set bucket <name>)")

	// ErrInvalidBackend indicates the upload backend could not be configured.
	ErrInvalidBackend = errors.New("invalid upload backend configuration")

	// ErrOutputExists indicates the output file already exists.
	ErrOutputExists = errors.New("output file already exists")

	// ErrInvalidID indicates an outbox ID argument that is not a number.
	ErrInvalidID = errors.New("invalid voice note id")
)

// reportedError marks an error whose user-facing message was already
// printed by the command.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// reported wraps err so callers do not print it twice.
func reported(err error) error {
	return reportedError{err: err}
}

// IsReported reports whether err has already been shown to the user.
func IsReported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// UserMessage returns the sentence shown for err. Capture and upload
// failures use their taxonomy messages; other errors are shown as is.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, capture.ErrPermissionDenied),
		errors.Is(err, capture.ErrDeviceUnavailable),
		errors.Is(err, capture.ErrEncoder),
		errors.Is(err, capture.ErrBusy):
		return capture.Message(err)
	case errors.Is(err, upload.ErrEmptyOrShort), errors.Is(err, upload.ErrUploadFailed):
		return upload.Message(err)
	default:
		return err.Error()
	}
}

// failureReason is the short cause stored with a note kept in the outbox
// and shown by list. Service text stays in the diagnostic log.
func failureReason(err error) string {
	switch {
	case errors.Is(err, apierr.ErrAuthFailed):
		return "storage rejected the credentials"
	case errors.Is(err, apierr.ErrQuotaExceeded):
		return "storage quota exceeded"
	case errors.Is(err, apierr.ErrRateLimit):
		return "storage is throttling uploads"
	case errors.Is(err, apierr.ErrTimeout):
		return "storage timed out"
	case errors.Is(err, apierr.ErrServer):
		return "storage server error"
	case errors.Is(err, apierr.ErrBadRequest):
		return "storage refused the upload"
	case errors.Is(err, upload.ErrNoURL):
		return "storage returned no public URL"
	default:
		return "upload failed"
	}
}
