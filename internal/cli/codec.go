package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/go-voicenote/internal/codec"
)

// codecOptions holds the options for the codec command.
type codecOptions struct {
	userAgent string
	supports  []string
}

// CodecCmd creates the codec command.
// It shows which codec and container a platform would record with.
func CodecCmd(env *Env) *cobra.Command {
	var opts codecOptions

	cmd := &cobra.Command{
		Use:   "codec",
		Short: "Show the codec a platform records with",
		Long: `Show the codec and container chosen for a platform.

Without flags the running host is used and encoder support is asked from
FFmpeg. With --user-agent a browser is classified instead; --supports
lists the MIME types that runtime can encode.`,
		Example: `  voicenote codec
  voicenote codec --user-agent "Mozilla/5.0 (iPhone; ...) Safari/604.1"
  voicenote codec --user-agent "$UA" --supports "audio/webm;codecs=opus"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodec(cmd.Context(), env, opts)
		},
	}

	cmd.Flags().StringVar(&opts.userAgent, "user-agent", "", "Browser User-Agent to classify instead of the host")
	cmd.Flags().StringSliceVar(&opts.supports, "supports", nil, "MIME types the runtime can encode (default: ask FFmpeg)")

	return cmd
}

// runCodec prints the detected platform family and codec choice.
func runCodec(ctx context.Context, env *Env, opts codecOptions) error {
	platform := codec.Host()
	if opts.userAgent != "" {
		platform = codec.ParseUserAgent(opts.userAgent)
	}

	var supported codec.SupportFunc
	if opts.supports != nil {
		set := make(map[string]bool, len(opts.supports))
		for _, m := range opts.supports {
			set[strings.TrimSpace(m)] = true
		}
		supported = func(m string) bool { return set[m] }
	} else {
		ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
		if err != nil {
			return err
		}
		deps, err := env.CaptureFactory.NewCapture(ctx, ffmpegPath, env.Logger)
		if err != nil {
			return err
		}
		supported = deps.Encoders.IsTypeSupported
	}

	choice := codec.Detect(platform, supported)
	fmt.Fprintf(env.Stdout, "platform:  %s\n", describePlatform(platform))
	fmt.Fprintf(env.Stdout, "mime:      %s\n", choice.MIMEType)
	fmt.Fprintf(env.Stdout, "extension: %s\n", choice.Extension)
	return nil
}

// describePlatform renders the family with its engine hints.
func describePlatform(p codec.Platform) string {
	var hints []string
	if p.SafariLike {
		hints = append(hints, "safari-like")
	}
	if p.ChromiumLike {
		hints = append(hints, "chromium-like")
	}
	if len(hints) == 0 {
		return p.Family.String()
	}
	return fmt.Sprintf("%s (%s)", p.Family, strings.Join(hints, ", "))
}
