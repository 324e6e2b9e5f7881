package upload

import "errors"

// Upload conditions. Both are recoverable: the user may record again or
// retry without re-recording.
var (
	// ErrEmptyOrShort indicates the recording is below the minimum size.
	ErrEmptyOrShort = errors.New("recording is empty or too short")

	// ErrUploadFailed indicates the storage collaborator failed. The bytes
	// are retained for retry.
	ErrUploadFailed = errors.New("upload failed")

	// ErrNoURL indicates the collaborator reported success without a URL.
	ErrNoURL = errors.New("upload returned no public URL")
)

// Message returns the user-facing sentence for an upload error.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyOrShort):
		return "The voice note is empty or too short. Please record again."
	case errors.Is(err, ErrUploadFailed):
		return "The voice note could not be uploaded. It was kept and can be retried."
	default:
		return "Something went wrong while sending the voice note."
	}
}
