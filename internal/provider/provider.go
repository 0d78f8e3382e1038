// Package provider adapts heterogeneous speech-to-text backends to one
// request/response shape.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind names one closed variant of transcription backend.
type Kind string

const (
	KindOpenAI  Kind = "openai"
	KindGroq    Kind = "groq"
	KindBackend Kind = "backend"
)

const (
	DefaultTimeout = 120 * time.Second

	audioFileName    = "recording.wav"
	audioContentType = "audio/wav"
)

func Kinds() []Kind {
	return []Kind{KindOpenAI, KindGroq, KindBackend}
}

func ParseKind(value string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range Kinds() {
		if kind == normalized {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (known providers: openai, groq, backend)", value)
}

// Options carries optional hints. Each variant forwards only the hints its
// provider documents.
type Options struct {
	Language string
	Model    string
	Prompt   string
}

// Result is a successful transcription. DurationMinutes is zero when the
// provider did not report a duration.
type Result struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	DurationMinutes float64 `json:"duration,omitempty"`
}

type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error)
}

// ClientOptions configures the transport shared by all variants.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (o ClientOptions) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (o ClientOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// languageHint drops the "auto" sentinel; providers detect the language
// themselves when no hint is sent.
func languageHint(language string) string {
	trimmed := strings.TrimSpace(strings.ToLower(language))
	if trimmed == "" || trimmed == "auto" {
		return ""
	}
	return trimmed
}
