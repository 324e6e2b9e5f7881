package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/alnah/go-voicenote/internal/codec"
	"github.com/alnah/go-voicenote/internal/ffmpeg"
)

// Capabilities lists the FFmpeg encoders and muxers relevant to voice
// notes.
type Capabilities struct {
	Encoders map[string]bool
	Muxers   map[string]bool
}

// QueryCapabilities asks FFmpeg for its audio encoders and muxers.
func QueryCapabilities(ctx context.Context, ffmpegPath string) (Capabilities, error) {
	return queryCapabilities(ctx, ffmpeg.RunOutput, ffmpegPath)
}

func queryCapabilities(ctx context.Context, run runOutputFunc, ffmpegPath string) (Capabilities, error) {
	version, err := run(ctx, ffmpegPath, []string{"-hide_banner", "-version"})
	if err == nil && !ffmpeg.VersionOK(version) {
		return Capabilities{}, fmt.Errorf("%w: %s", ErrFFmpegTooOld, firstLine(version))
	}
	encoders, err := run(ctx, ffmpegPath, []string{"-hide_banner", "-encoders"})
	if err != nil && encoders == "" {
		return Capabilities{}, fmt.Errorf("list encoders: %w", err)
	}
	muxers, err := run(ctx, ffmpegPath, []string{"-hide_banner", "-muxers"})
	if err != nil && muxers == "" {
		return Capabilities{}, fmt.Errorf("list muxers: %w", err)
	}
	return Capabilities{
		Encoders: parseCodecList(encoders, 'A'),
		Muxers:   parseCodecList(muxers, 'E'),
	}, nil
}

// parseCodecList reads `ffmpeg -encoders` or `-muxers` output. Entry
// lines start with a flags column; kind selects the flag that marks a
// usable entry (A for audio encoders, E for muxers).
func parseCodecList(output string, kind byte) map[string]bool {
	names := make(map[string]bool)
	pastHeader := false
	for line := range strings.SplitSeq(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") && strings.Trim(trimmed, "-") == "" {
			pastHeader = true
			continue
		}
		fields := strings.Fields(trimmed)
		if !pastHeader || len(fields) < 2 || strings.IndexByte(fields[0], kind) < 0 {
			continue
		}
		for name := range strings.SplitSeq(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

// opusEncoder returns the preferred Opus encoder name, or "".
func (c Capabilities) opusEncoder() string {
	switch {
	case c.Encoders["libopus"]:
		return "libopus"
	case c.Encoders["opus"]:
		return "opus"
	default:
		return ""
	}
}

// Supports reports whether mimeType can be produced.
func (c Capabilities) Supports(mimeType string) bool {
	switch codec.BaseMIME(mimeType) {
	case "audio/webm":
		return c.Muxers["webm"] && c.opusEncoder() != ""
	case "audio/ogg":
		return c.Muxers["ogg"] && c.opusEncoder() != ""
	case "audio/mp4":
		return c.Muxers["mp4"] && c.Encoders["aac"]
	default:
		return false
	}
}

// Default returns the type used when the caller does not force one.
func (c Capabilities) Default() string {
	for _, m := range []string{codec.MIMEMP4AAC, codec.MIMEWebMOpus, codec.MIMEOggOpus} {
		if c.Supports(m) {
			return m
		}
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
