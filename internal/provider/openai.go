package provider

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultOpenAIModel   = openai.Whisper1
	DefaultGroqModel     = "whisper-large-v3"
)

// Whisper talks to OpenAI-compatible /audio/transcriptions endpoints. The audio
// travels in the multipart field "file".
type Whisper struct {
	name        string
	client      *openai.Client
	model       string
	modelHints  bool
	promptHints bool
	logger      *zap.Logger
}

func NewOpenAI(apiKey string, opts ClientOptions) *Whisper {
	return newWhisper(string(KindOpenAI), apiKey, DefaultOpenAIBaseURL, opts, DefaultOpenAIModel, true)
}

// NewGroq always requests whisper-large-v3 and does not forward model or
// prompt hints.
func NewGroq(apiKey string, opts ClientOptions) *Whisper {
	return newWhisper(string(KindGroq), apiKey, DefaultGroqBaseURL, opts, DefaultGroqModel, false)
}

func newWhisper(name, apiKey, defaultBaseURL string, opts ClientOptions, model string, hints bool) *Whisper {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = defaultBaseURL
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = opts.httpClient()

	return &Whisper{
		name:        name,
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		modelHints:  hints,
		promptHints: hints,
		logger:      opts.logger(),
	}
}

func (w *Whisper) Name() string {
	return w.name
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error) {
	req := openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(audio),
		FilePath: audioFileName,
		Language: languageHint(opts.Language),
		// verbose_json is the only format that reports the audio duration.
		Format: openai.AudioResponseFormatVerboseJSON,
	}
	if w.modelHints && strings.TrimSpace(opts.Model) != "" {
		req.Model = strings.TrimSpace(opts.Model)
	}
	if w.promptHints {
		req.Prompt = opts.Prompt
	}

	w.logger.Debug("sending transcription request", zap.String("provider", w.name), zap.String("model", req.Model), zap.Int("bytes", len(audio)))
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return Result{}, w.normalize(err)
	}

	return Result{
		Text:            strings.TrimSpace(resp.Text),
		Language:        resp.Language,
		DurationMinutes: resp.Duration / 60,
	}, nil
}

func (w *Whisper) normalize(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(w.name, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(w.name, reqErr.HTTPStatusCode, "", err)
	}

	return transportError(w.name, err)
}
