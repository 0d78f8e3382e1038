package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"
)

const (
	DeviceIDHeader = "X-Device-ID"

	maxResponseBytes = 1 << 20
)

// Backend talks to a self-hosted dictado server. The audio travels in the
// multipart field "audio" and the token, when set, as a bearer credential.
type Backend struct {
	baseURL  string
	token    string
	deviceID string
	client   *http.Client
	logger   *zap.Logger
}

type backendResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type backendErrorEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func NewBackend(baseURL, token, deviceID string, opts ClientOptions) *Backend {
	return &Backend{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:    strings.TrimSpace(token),
		deviceID: strings.TrimSpace(deviceID),
		client:   opts.httpClient(),
		logger:   opts.logger(),
	}
}

func (b *Backend) Name() string {
	return string(KindBackend)
}

func (b *Backend) Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error) {
	fields := map[string]string{}
	if language := languageHint(opts.Language); language != "" {
		fields["language"] = language
	}
	if model := strings.TrimSpace(opts.Model); model != "" {
		fields["model"] = model
	}

	body, contentType, err := encodeAudioForm("audio", audio, fields)
	if err != nil {
		return Result{}, fmt.Errorf("encode transcription form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/transcribe", body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	if b.deviceID != "" {
		req.Header.Set(DeviceIDHeader, b.deviceID)
	}

	b.logger.Debug("sending transcription request", zap.String("provider", b.Name()), zap.String("url", req.URL.String()), zap.Int("bytes", len(audio)))
	resp, err := b.client.Do(req)
	if err != nil {
		return Result{}, transportError(b.Name(), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, transportError(b.Name(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, statusError(b.Name(), resp.StatusCode, backendErrorMessage(payload), nil)
	}

	var decoded backendResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Result{}, statusError(b.Name(), resp.StatusCode, "invalid transcription response", err)
	}

	return Result{
		Text:            strings.TrimSpace(decoded.Text),
		Language:        decoded.Language,
		DurationMinutes: decoded.Duration,
	}, nil
}

func backendErrorMessage(payload []byte) string {
	var envelope backendErrorEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}

func encodeAudioForm(fieldName string, audio []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, audioFileName))
	header.Set("Content-Type", audioContentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}

	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
