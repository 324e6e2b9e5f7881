// Package transcribe captions finished voice notes with OpenAI's
// transcription API.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/apierr"
)

// ModelGPT4oMiniTranscribe is the cost-effective transcription model.
// Not yet a constant in go-openai.
const ModelGPT4oMiniTranscribe = "gpt-4o-mini-transcribe"

// Options configures a caption request.
type Options struct {
	// Prompt provides vocabulary or context hints.
	Prompt string

	// Language is an ISO 639-1 code or locale ("pt-BR"). Empty means
	// auto-detect.
	Language string
}

// Captioner turns voice note audio into text.
type Captioner interface {
	// Caption transcribes data. name is the artifact file name; its
	// extension tells the API the container format.
	Caption(ctx context.Context, name string, data []byte, opts Options) (string, error)
}

// audioTranscriber is the subset of *openai.Client used here.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Compile-time interface compliance checks.
var (
	_ Captioner        = (*OpenAICaptioner)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAICaptioner captions audio with OpenAI, retrying transient errors
// with exponential backoff.
type OpenAICaptioner struct {
	client audioTranscriber
	model  string
	retry  apierr.RetryConfig
	logger *zap.Logger
}

// CaptionerOption configures an OpenAICaptioner.
type CaptionerOption func(*OpenAICaptioner)

// WithModel overrides the transcription model.
func WithModel(model string) CaptionerOption {
	return func(c *OpenAICaptioner) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg apierr.RetryConfig) CaptionerOption {
	return func(c *OpenAICaptioner) {
		c.retry = cfg
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) CaptionerOption {
	return func(c *OpenAICaptioner) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewOpenAICaptioner creates a captioner on the given client.
func NewOpenAICaptioner(client *openai.Client, opts ...CaptionerOption) *OpenAICaptioner {
	return newCaptioner(client, opts...)
}

func newCaptioner(client audioTranscriber, opts ...CaptionerOption) *OpenAICaptioner {
	c := &OpenAICaptioner{
		client: client,
		model:  ModelGPT4oMiniTranscribe,
		retry: apierr.RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   15 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Caption transcribes data. Rate limits, timeouts and server errors are
// retried; quota and authentication failures are returned at once.
func (c *OpenAICaptioner) Caption(ctx context.Context, name string, data []byte, opts Options) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAudio
	}
	cfg := c.retry
	cfg.OnRetry = func(retry int, err error, wait time.Duration) {
		c.logger.Info("caption retry", zap.Int("retry", retry), zap.Duration("wait", wait), zap.Error(err))
	}

	return apierr.RetryWithBackoff(ctx, cfg, func() (string, error) {
		// The reader is consumed by each attempt.
		req := openai.AudioRequest{
			Model:    c.model,
			FilePath: name,
			Reader:   bytes.NewReader(data),
			Format:   openai.AudioResponseFormatJSON,
			Prompt:   opts.Prompt,
			Language: baseCode(opts.Language),
		}
		resp, err := c.client.CreateTranscription(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		return strings.TrimSpace(resp.Text), nil
	}, apierr.Retryable)
}

// baseCode reduces a locale to the ISO 639-1 code the API accepts.
func baseCode(lang string) string {
	lang = strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
	base, _, _ := strings.Cut(lang, "-")
	return base
}

// classifyError maps OpenAI API errors to apierr sentinels.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		// Quota exhaustion also arrives as 429 but needs user action.
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests &&
			(strings.Contains(apiErr.Message, "quota") || strings.Contains(apiErr.Message, "billing")) {
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
		}
		if mapped := apierr.FromStatus(apiErr.HTTPStatusCode, apiErr.Message); mapped != nil {
			return mapped
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if mapped := apierr.FromStatus(reqErr.HTTPStatusCode, string(reqErr.Body)); mapped != nil {
			return mapped
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}

	return err
}
