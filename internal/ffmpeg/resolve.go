// Package ffmpeg locates the FFmpeg binary and runs it, either one-shot
// with captured output or as a long-lived piped process.
package ffmpeg

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// envFFmpegPath overrides binary discovery.
const envFFmpegPath = "FFMPEG_PATH"

// minMajorVersion is the oldest FFmpeg known to mux fragmented MP4 and
// WebM to a pipe correctly.
const minMajorVersion = 4

// Resolver finds the FFmpeg binary.
type Resolver struct {
	env  envProvider
	goos string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEnvProvider sets the environment provider implementation.
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithGOOS sets the target OS used for install instructions.
func WithGOOS(goos string) ResolverOption {
	return func(r *Resolver) { r.goos = goos }
}

// NewResolver creates a Resolver with production defaults.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{env: osEnvProvider{}, goos: runtime.GOOS}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds ffmpeg using, in order, the FFMPEG_PATH environment
// variable (an error if set but invalid) and the system PATH.
func (r *Resolver) Resolve(_ context.Context) (string, error) {
	if envPath := r.env.Getenv(envFFmpegPath); envPath != "" {
		if _, err := r.env.Stat(envPath); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but binary not found", ErrNotFound, envFFmpegPath, envPath)
		}
		return envPath, nil
	}
	if path, err := r.env.LookPath("ffmpeg"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w\n\n%s", ErrNotFound, r.installInstructions())
}

func (r *Resolver) installInstructions() string {
	switch r.goos {
	case "darwin":
		return "Install FFmpeg with: brew install ffmpeg\nOr set FFMPEG_PATH to your ffmpeg binary."
	case "linux":
		return "Install FFmpeg with your package manager (apt install ffmpeg, dnf install ffmpeg, pacman -S ffmpeg).\nOr set FFMPEG_PATH to your ffmpeg binary."
	case "windows":
		return "Install FFmpeg with: winget install ffmpeg\nOr set FFMPEG_PATH to your ffmpeg.exe."
	default:
		return "Download FFmpeg from https://ffmpeg.org/download.html\nOr set FFMPEG_PATH to your ffmpeg binary."
	}
}

// Resolve finds ffmpeg using a default Resolver.
func Resolve(ctx context.Context) (string, error) {
	return NewResolver().Resolve(ctx)
}

// MajorVersion parses the major version from `ffmpeg -version` output.
// It reports false when the banner is not recognized.
func MajorVersion(output string) (int, bool) {
	line, _, _ := strings.Cut(output, "\n")
	var major int
	if _, err := fmt.Sscanf(line, "ffmpeg version %d", &major); err == nil {
		return major, true
	}
	if _, err := fmt.Sscanf(line, "ffmpeg version n%d", &major); err == nil {
		return major, true
	}
	return 0, false
}

// VersionOK reports whether output describes a supported FFmpeg. Unknown
// banners (distribution builds, git snapshots) are accepted.
func VersionOK(output string) bool {
	major, ok := MajorVersion(output)
	return !ok || major >= minMajorVersion
}
