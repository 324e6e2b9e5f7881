package upload_test

// Notes:
// - Uploads use an in-memory UploaderFunc recording every call.
// - Retry delays are 1ms; only attempt counts are asserted.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-voicenote/internal/apierr"
	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/upload"
)

var fastRetry = apierr.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

type recordingUploader struct {
	mu      sync.Mutex
	calls   []upload.File
	folders []string
	results []struct {
		url string
		err error
	}
}

func (r *recordingUploader) push(url string, err error) *recordingUploader {
	r.results = append(r.results, struct {
		url string
		err error
	}{url, err})
	return r
}

func (r *recordingUploader) Upload(_ context.Context, f upload.File, folder string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, f)
	r.folders = append(r.folders, folder)
	if len(r.results) == 0 {
		return "https://cdn.example/" + folder + "/" + f.Name, nil
	}
	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return res.url, res.err
}

func audioOf(n int) *capture.Audio {
	return capture.NewAudio(bytes.Repeat([]byte{0x1a}, n), "audio/webm", "webm", 7)
}

func fixedGate(u upload.Uploader, opts ...upload.GateOption) *upload.Gate {
	base := []upload.GateOption{
		upload.WithNow(func() time.Time { return time.UnixMilli(1769351400000) }),
		upload.WithIDGenerator(func() string { return "ab12cd34" }),
		upload.WithRetry(fastRetry),
	}
	return upload.NewGate(u, append(base, opts...)...)
}

// ---------------------------------------------------------------------------
// Size gate
// ---------------------------------------------------------------------------

func TestGate_MinimumSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		audio   *capture.Audio
		wantErr bool
	}{
		{name: "nil audio", audio: nil, wantErr: true},
		{name: "empty", audio: audioOf(0), wantErr: true},
		{name: "one below minimum", audio: audioOf(upload.DefaultMinBytes - 1), wantErr: true},
		{name: "exactly minimum", audio: audioOf(upload.DefaultMinBytes)},
		{name: "above minimum", audio: audioOf(50_000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := &recordingUploader{}
			_, err := fixedGate(u).Upload(context.Background(), tt.audio)

			if tt.wantErr {
				if !errors.Is(err, upload.ErrEmptyOrShort) {
					t.Errorf("Upload() error = %v, want ErrEmptyOrShort", err)
				}
				if len(u.calls) != 0 {
					t.Errorf("uploader called %d times for rejected audio, want 0", len(u.calls))
				}
				return
			}
			if err != nil {
				t.Errorf("Upload() unexpected error: %v", err)
			}
		})
	}
}

func TestGate_CustomMinimum(t *testing.T) {
	t.Parallel()

	g := fixedGate(&recordingUploader{}, upload.WithMinBytes(10))
	if err := g.Check(audioOf(10)); err != nil {
		t.Errorf("Check(10 bytes) unexpected error: %v", err)
	}
	if err := g.Check(audioOf(9)); !errors.Is(err, upload.ErrEmptyOrShort) {
		t.Errorf("Check(9 bytes) error = %v, want ErrEmptyOrShort", err)
	}
}

// ---------------------------------------------------------------------------
// Artifact
// ---------------------------------------------------------------------------

func TestGate_Artifact(t *testing.T) {
	t.Parallel()

	u := &recordingUploader{}
	g := fixedGate(u, upload.WithFolder("voice-notes"), upload.WithOwner("user 42!"))
	res, err := g.Upload(context.Background(), audioOf(3000))
	if err != nil {
		t.Fatalf("Upload() unexpected error: %v", err)
	}

	f := u.calls[0]
	if want := "user42_1769351400000_ab12cd34.webm"; f.Name != want {
		t.Errorf("Name = %q, want %q", f.Name, want)
	}
	if f.MIMEType != "audio/webm" || len(f.Data) != 3000 {
		t.Errorf("File = %q/%d bytes, want audio/webm/3000", f.MIMEType, len(f.Data))
	}
	if u.folders[0] != "voice-notes" {
		t.Errorf("folder = %q, want voice-notes", u.folders[0])
	}
	if res.URL != "https://cdn.example/voice-notes/"+f.Name || res.DurationSeconds != 7 {
		t.Errorf("Result = %+v", res)
	}
}

func TestGate_DefaultNameUsesUUID(t *testing.T) {
	t.Parallel()

	g := upload.NewGate(&recordingUploader{})
	name := g.File(audioOf(1)).Name
	if !regexp.MustCompile(`^voice_\d+_[0-9a-f]{8}\.webm$`).MatchString(name) {
		t.Errorf("File().Name = %q, want voice_<millis>_<id>.webm", name)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestGate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		uploader  *recordingUploader
		wantCalls int
		wantErr   error
	}{
		{
			name:      "permanent failure not retried",
			uploader:  (&recordingUploader{}).push("", fmt.Errorf("put: %w", apierr.ErrAuthFailed)),
			wantCalls: 1,
			wantErr:   apierr.ErrAuthFailed,
		},
		{
			name:      "transient failure retried until exhausted",
			uploader:  (&recordingUploader{}).push("", apierr.ErrServer),
			wantCalls: 3,
			wantErr:   apierr.ErrServer,
		},
		{
			name:      "empty URL is a failure",
			uploader:  (&recordingUploader{}).push("", nil),
			wantCalls: 1,
			wantErr:   upload.ErrNoURL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := fixedGate(tt.uploader).Upload(context.Background(), audioOf(2000))

			if !errors.Is(err, upload.ErrUploadFailed) || !errors.Is(err, tt.wantErr) {
				t.Errorf("Upload() error = %v, want ErrUploadFailed wrapping %v", err, tt.wantErr)
			}
			if len(tt.uploader.calls) != tt.wantCalls {
				t.Errorf("uploader calls = %d, want %d", len(tt.uploader.calls), tt.wantCalls)
			}
		})
	}
}

func TestGate_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	u := (&recordingUploader{}).
		push("", apierr.ErrRateLimit).
		push("https://cdn.example/x.webm", nil)
	res, err := fixedGate(u).Upload(context.Background(), audioOf(2000))
	if err != nil {
		t.Fatalf("Upload() unexpected error: %v", err)
	}
	if res.URL != "https://cdn.example/x.webm" || len(u.calls) != 2 {
		t.Errorf("Upload() = %+v after %d calls", res, len(u.calls))
	}
}

func TestGate_FailureKeepsBytes(t *testing.T) {
	t.Parallel()

	a := audioOf(2500)
	u := (&recordingUploader{}).push("", apierr.ErrBadRequest)
	g := fixedGate(u)
	if _, err := g.Upload(context.Background(), a); err == nil {
		t.Fatal("Upload() expected error")
	}

	// The same audio can be sent again without re-recording.
	if _, err := g.Send(context.Background(), g.File(a)); !errors.Is(err, upload.ErrUploadFailed) {
		t.Fatalf("Send() error = %v", err)
	}
	if a.Len() != 2500 {
		t.Errorf("Len() after failed upload = %d, want 2500", a.Len())
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	short := upload.Message(fmt.Errorf("x: %w", upload.ErrEmptyOrShort))
	failed := upload.Message(fmt.Errorf("x: %w", upload.ErrUploadFailed))
	other := upload.Message(errors.New("boom"))
	if short == "" || failed == "" || short == failed || failed == other || short == other {
		t.Errorf("messages not distinct: %q %q %q", short, failed, other)
	}
	if upload.Message(nil) != "" {
		t.Error("Message(nil) should be empty")
	}
}
