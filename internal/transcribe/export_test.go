package transcribe

// AudioTranscriber exports audioTranscriber for testing.
type AudioTranscriber = audioTranscriber

// NewTestCaptioner creates an OpenAICaptioner with a mock client.
func NewTestCaptioner(client audioTranscriber, opts ...CaptionerOption) *OpenAICaptioner {
	return newCaptioner(client, opts...)
}

// Function exports for unit testing internal logic.
var (
	ClassifyError = classifyError
	BaseCode      = baseCode
)
