package audio_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/alnah/go-voicenote/internal/audio"
	"github.com/alnah/go-voicenote/internal/codec"
)

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus
 A....D libvorbis            libvorbis
`

const muxersOutput = `File formats:
 D. = Demuxing supported
 .E = Muxing supported
 --
  E mp4             MP4 (MPEG-4 Part 14)
  E ogg             Ogg
 D  wav             WAV / WAVE (Waveform Audio)
  E webm            WebM
`

func fullCaps() audio.Capabilities {
	return audio.Capabilities{
		Encoders: audio.ParseCodecList(encodersOutput, 'A'),
		Muxers:   audio.ParseCodecList(muxersOutput, 'E'),
	}
}

func TestParseCodecList(t *testing.T) {
	t.Parallel()

	enc := audio.ParseCodecList(encodersOutput, 'A')
	for _, name := range []string{"aac", "libopus", "libvorbis"} {
		if !enc[name] {
			t.Errorf("encoders missing %q", name)
		}
	}
	if enc["libx264"] || enc["="] {
		t.Errorf("encoders include non-audio or legend entries: %v", enc)
	}

	mux := audio.ParseCodecList(muxersOutput, 'E')
	if !mux["webm"] || !mux["ogg"] || !mux["mp4"] {
		t.Errorf("muxers = %v, want webm ogg mp4", mux)
	}
	if mux["wav"] {
		t.Error("demux-only wav reported as muxer")
	}
}

func TestCapabilities_Supports(t *testing.T) {
	t.Parallel()

	noOpus := fullCaps()
	delete(noOpus.Encoders, "libopus")
	nativeOpus := fullCaps()
	delete(nativeOpus.Encoders, "libopus")
	nativeOpus.Encoders["opus"] = true

	tests := []struct {
		name string
		caps audio.Capabilities
		mime string
		want bool
	}{
		{"webm opus", fullCaps(), codec.MIMEWebMOpus, true},
		{"ogg opus", fullCaps(), codec.MIMEOggOpus, true},
		{"mp4 aac", fullCaps(), codec.MIMEMP4AAC, true},
		{"bare mp4", fullCaps(), codec.MIMEMP4, true},
		{"unknown", fullCaps(), "audio/flac", false},
		{"webm without opus", noOpus, codec.MIMEWebMOpus, false},
		{"native opus encoder", nativeOpus, codec.MIMEOggOpus, true},
		{"empty caps", audio.Capabilities{}, codec.MIMEMP4, false},
	}
	for _, tt := range tests {
		if got := tt.caps.Supports(tt.mime); got != tt.want {
			t.Errorf("%s: Supports(%q) = %v, want %v", tt.name, tt.mime, got, tt.want)
		}
	}
}

func TestCapabilities_Default(t *testing.T) {
	t.Parallel()

	if got := fullCaps().Default(); got != codec.MIMEMP4AAC {
		t.Errorf("Default() = %q, want %q", got, codec.MIMEMP4AAC)
	}
	onlyOgg := audio.Capabilities{
		Encoders: map[string]bool{"libopus": true},
		Muxers:   map[string]bool{"ogg": true},
	}
	if got := onlyOgg.Default(); got != codec.MIMEOggOpus {
		t.Errorf("Default() = %q, want %q", got, codec.MIMEOggOpus)
	}
	if got := (audio.Capabilities{}).Default(); got != "" {
		t.Errorf("Default() on empty = %q, want empty", got)
	}
}

func TestQueryCapabilities(t *testing.T) {
	t.Parallel()

	var calls [][]string
	caps, err := audio.QueryCapabilitiesWith(context.Background(), func(_ context.Context, _ string, args []string) (string, error) {
		calls = append(calls, args)
		if slices.Contains(args, "-version") {
			return "ffmpeg version 6.1.1 Copyright (c) 2000-2023", nil
		}
		if slices.Contains(args, "-encoders") {
			return encodersOutput, nil
		}
		return muxersOutput, errors.New("exit status 1")
	})
	if err != nil {
		t.Fatalf("QueryCapabilities() unexpected error: %v", err)
	}
	if len(calls) != 3 || !caps.Supports(codec.MIMEWebMOpus) {
		t.Errorf("calls = %v, caps = %+v", calls, caps)
	}
}

func TestQueryCapabilities_NoOutput(t *testing.T) {
	t.Parallel()

	_, err := audio.QueryCapabilitiesWith(context.Background(), func(context.Context, string, []string) (string, error) {
		return "", errors.New("exec: not found")
	})
	if err == nil {
		t.Error("QueryCapabilities() expected error")
	}
}

func TestQueryCapabilities_TooOld(t *testing.T) {
	t.Parallel()

	_, err := audio.QueryCapabilitiesWith(context.Background(), func(_ context.Context, _ string, args []string) (string, error) {
		if slices.Contains(args, "-version") {
			return "ffmpeg version 3.4.8-0ubuntu0.2 Copyright (c) 2000-2020\nbuilt with gcc 7", nil
		}
		return encodersOutput, nil
	})
	if !errors.Is(err, audio.ErrFFmpegTooOld) {
		t.Fatalf("QueryCapabilities() error = %v, want ErrFFmpegTooOld", err)
	}
}
