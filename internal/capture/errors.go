package capture

import "errors"

// Terminal capture conditions. Each maps to one user-facing message via Message.
var (
	// ErrPermissionDenied indicates the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable indicates no usable input device could be opened.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")

	// ErrEncoder indicates the encoder failed; partial data is discarded.
	ErrEncoder = errors.New("audio encoder failed")

	// ErrStopTimeout indicates the encoder never reported that it stopped.
	// It is always wrapped with ErrEncoder.
	ErrStopTimeout = errors.New("encoder did not stop in time")
)

// Usage errors returned by Session methods.
var (
	// ErrBusy indicates Start was called while a recording is in progress.
	ErrBusy = errors.New("a recording is already in progress")

	// ErrNotRecording indicates Stop was called outside the recording state.
	ErrNotRecording = errors.New("not recording")

	// ErrNotStarted indicates Completion was requested before any Start.
	ErrNotStarted = errors.New("no recording has been started")
)

// Message returns the user-facing sentence for a capture error.
// Raw platform text is never included.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone access and try again."
	case errors.Is(err, ErrDeviceUnavailable):
		return "No microphone is available. Connect a microphone and try again."
	case errors.Is(err, ErrEncoder):
		return "Recording failed and was discarded. Please record again."
	case errors.Is(err, ErrBusy):
		return "A voice note is already being recorded."
	case errors.Is(err, ErrNotRecording):
		return "There is no recording to stop."
	case errors.Is(err, ErrNotStarted):
		return "No voice note has been recorded yet."
	default:
		return "Something went wrong while recording. Please try again."
	}
}
