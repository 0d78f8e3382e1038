package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/history"
	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/fmueller/dictado/internal/session"
	"github.com/fmueller/dictado/internal/store"
	"github.com/fmueller/dictado/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "admin-secret"

type fixture struct {
	server   *Server
	backend  *store.FileStore
	ledger   *quota.Ledger
	groqHits *atomic.Int32
}

type fixtureOptions struct {
	groqStatus int
	groqBody   string
	tokens     *token.Service
	maxUpload  int64
}

func newFixture(t *testing.T, opts fixtureOptions) fixture {
	t.Helper()

	if opts.groqStatus == 0 {
		opts.groqStatus = http.StatusOK
	}
	if opts.groqBody == "" {
		opts.groqBody = `{"text":"hello world this is a test"}`
	}

	hits := &atomic.Int32{}
	groq := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(opts.groqStatus)
		_, _ = io.WriteString(w, opts.groqBody)
	}))
	t.Cleanup(groq.Close)

	backend, err := store.OpenFile("")
	require.NoError(t, err)
	registry := license.NewRegistry(backend, nil, nil)
	ledger := quota.NewLedger(backend, registry, quota.Options{})
	hist, err := history.Open("")
	require.NoError(t, err)

	dispatcher := dispatch.New(dispatch.Options{BaseURLs: map[provider.Kind]string{provider.KindGroq: groq.URL}})
	orchestrator := session.New(session.Options{Dispatcher: dispatcher, Quota: ledger, History: hist})

	srv := New(Options{
		Sessions:       orchestrator,
		Quota:          ledger,
		Licenses:       registry,
		History:        hist,
		Identities:     backend,
		Transcription:  dispatch.Config{Provider: provider.KindGroq, APIKey: "gsk-server"},
		AdminKey:       testAdminKey,
		Tokens:         opts.tokens,
		MaxUploadBytes: opts.maxUpload,
		Version:        "1.0.0",
	})

	return fixture{server: srv, backend: backend, ledger: ledger, groqHits: hits}
}

func (f fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	body := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func audioRequest(t *testing.T, device string, audio []byte, language string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if audio != nil {
		part, err := writer.CreateFormFile("audio", "recording.wav")
		require.NoError(t, err)
		_, err = part.Write(audio)
		require.NoError(t, err)
	}
	if language != "" {
		require.NoError(t, writer.WriteField("language", language))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if device != "" {
		req.Header.Set(DeviceIDHeader, device)
	}
	return req
}

func speech() []byte {
	return bytes.Repeat([]byte{7}, 2048)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	rec, body := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{"status": "ok", "service": "Dictado API", "version": "1.0.0"}, body)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestStatusRequiresDevice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	rec, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Device ID required", body["error"])
	require.Equal(t, "device_required", body["code"])
}

func TestStatusRegistersIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(DeviceIDHeader, "dev-1")

	rec, body := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["allowed"])
	require.Equal(t, false, body["isPro"])
	require.Equal(t, 5.0, body["remaining"])
	require.Equal(t, 5.0, body["limit"])
	require.Contains(t, f.backend.Snapshot().Users, "dev-1")
}

func TestTranscribeRecordsUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	rec, body := f.do(t, audioRequest(t, "dev-1", speech(), "es"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "hello world this is a test", body["text"])
	require.Equal(t, 0.1, body["duration"])

	status := body["status"].(map[string]any)
	require.InDelta(t, 4.9, status["remaining"], 1e-9)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set(DeviceIDHeader, "dev-1")
	rec, body = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	require.Equal(t, "server", entries[0].(map[string]any)["source"])
}

func TestTranscribeRejectsMissingAndShortAudio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		audio []byte
		code  string
	}{
		{name: "missing", audio: nil, code: "audio_required"},
		{name: "too short", audio: []byte("tiny"), code: "audio_too_short"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, fixtureOptions{})
			rec, body := f.do(t, audioRequest(t, "dev-1", tc.audio, ""))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tc.code, body["code"])
			require.Zero(t, f.groqHits.Load())
		})
	}
}

func TestTranscribeRejectsOversizedUpload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{maxUpload: 1024})
	rec, body := f.do(t, audioRequest(t, "dev-1", speech(), ""))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "audio_too_large", body["code"])
	require.Zero(t, f.groqHits.Load())
}

func TestTranscribeQuotaExceeded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	require.NoError(t, f.ledger.RecordUsage(context.Background(), "dev-1", 5))

	rec, body := f.do(t, audioRequest(t, "dev-1", speech(), ""))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "quota_exceeded", body["code"])
	require.Equal(t, false, body["allowed"])
	require.Equal(t, 5.0, body["used"])
	require.Equal(t, 0.0, body["remaining"])
	require.NotEmpty(t, body["message"])
	require.Zero(t, f.groqHits.Load())
}

func TestTranscribeProviderErrorKeepsStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{
		groqStatus: http.StatusTooManyRequests,
		groqBody:   `{"error":{"message":"Rate limit reached","type":"rate_limit"}}`,
	})

	rec, body := f.do(t, audioRequest(t, "dev-1", speech(), ""))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "provider_error", body["code"])
	require.Equal(t, "Rate limit reached", body["error"])

	status, err := f.ledger.CheckQuota(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Zero(t, status.UsedMinutes)
}

func TestActivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	activate := func(device, body string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/activate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(DeviceIDHeader, device)
		return f.do(t, req)
	}

	rec, body := activate("dev-1", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "license_required", body["code"])

	rec, body = activate("dev-1", `{"licenseKey":"NOPE"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_license", body["code"])

	rec, body = activate("dev-1", `{"licenseKey":"DICTADO-AB12-CD34-EF56"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])

	rec, _ = activate("dev-1", `{"licenseKey":"DICTADO-AB12-CD34-EF56"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = activate("dev-2", `{"licenseKey":"DICTADO-AB12-CD34-EF56"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "already_bound", body["code"])

	require.NoError(t, f.ledger.RecordUsage(context.Background(), "dev-1", 50))
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(DeviceIDHeader, "dev-1")
	_, body = f.do(t, req)
	require.Equal(t, true, body["allowed"])
	require.Equal(t, true, body["isPro"])
}

func TestGenerateLicense(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{name: "missing key", key: "", status: http.StatusUnauthorized},
		{name: "wrong key", key: "dictado-admin-2024", status: http.StatusUnauthorized},
		{name: "valid key", key: testAdminKey, status: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/generate-license", nil)
			if tc.key != "" {
				req.Header.Set(AdminKeyHeader, tc.key)
			}
			rec, body := f.do(t, req)
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				key, _ := body["licenseKey"].(string)
				require.NoError(t, license.PrefixVerifier{}.Verify(key))
			}
		})
	}
}

func TestGenerateLicenseDisabledWithoutAdminKey(t *testing.T) {
	t.Parallel()

	srv := New(Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/generate-license", nil)
	req.Header.Set(AdminKeyHeader, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenRequiredWhenConfigured(t *testing.T) {
	t.Parallel()

	tokens := token.NewService("0123456789abcdef0123")
	f := newFixture(t, fixtureOptions{tokens: tokens})

	statusReq := func(device, bearer string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set(DeviceIDHeader, device)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return req
	}

	rec, body := f.do(t, statusReq("dev-1", ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token_required", body["code"])

	rec, body = f.do(t, statusReq("dev-1", "garbage"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_token", body["code"])

	scoped, err := tokens.Issue("dev-1", time.Hour)
	require.NoError(t, err)
	rec, _ = f.do(t, statusReq("dev-1", scoped))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do(t, statusReq("dev-2", scoped))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "token_mismatch", body["code"])
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/status", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBackendProviderAgainstServer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	api := httptest.NewServer(f.server.Handler())
	t.Cleanup(api.Close)

	client := provider.NewBackend(api.URL, "", "dev-remote", provider.ClientOptions{})
	result, err := client.Transcribe(context.Background(), speech(), provider.Options{Language: "es"})
	require.NoError(t, err)
	require.Equal(t, "hello world this is a test", result.Text)
	require.Equal(t, 0.1, result.DurationMinutes)

	require.NoError(t, f.ledger.RecordUsage(context.Background(), "dev-remote", 5))
	_, err = client.Transcribe(context.Background(), speech(), provider.Options{})
	var providerErr *provider.Error
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusForbidden, providerErr.StatusCode)
	require.Contains(t, providerErr.Message, "free transcription minutes")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureOptions{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStatusForMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "timeout", err: &provider.Error{Provider: "groq", Err: provider.ErrTimeout}, status: http.StatusGatewayTimeout, code: "provider_timeout"},
		{name: "transport", err: &provider.Error{Provider: "groq", Message: "transcription failed: connection refused"}, status: http.StatusBadGateway, code: "provider_error"},
		{name: "busy", err: session.ErrSessionBusy, status: http.StatusConflict, code: "session_busy"},
		{name: "missing config", err: dispatch.ErrMissingConfiguration, status: http.StatusServiceUnavailable, code: "not_configured"},
		{name: "unexpected", err: io.ErrUnexpectedEOF, status: http.StatusInternalServerError, code: "internal"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			status, code := statusFor(tc.err)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.code, code)
		})
	}
}
