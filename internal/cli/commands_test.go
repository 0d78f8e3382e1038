package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fmueller/dictado/internal/history"
	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/platform"
	"github.com/fmueller/dictado/internal/token"
	"github.com/stretchr/testify/require"
)

func TestStatusCommandFreshDevice(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	stdout, _, err := runCommand(t, []string{"status", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Contains(t, stdout, "Plan:      Free")
	require.Contains(t, stdout, "Used:      0.0 of 5 min today")
	require.Contains(t, stdout, "Remaining: 5.0 min")

	stdout, _, err = runCommand(t, []string{"status", "--data-dir", dataDir, "-o", "json"})
	require.NoError(t, err)
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(stdout), &view))
	require.Equal(t, statusView{Plan: "free", Allowed: true, RemainingMinutes: 5, DailyLimit: 5}, view)
}

func TestActivateCommandMakesDevicePro(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	stdout, _, err := runCommand(t, []string{"activate", " dictado-pro-family ", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Contains(t, stdout, "License activated")

	stdout, _, err = runCommand(t, []string{"status", "--data-dir", dataDir, "-o", "yaml"})
	require.NoError(t, err)
	require.Contains(t, stdout, "plan: pro")

	stdout, _, err = runCommand(t, []string{"config", "show", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Contains(t, stdout, "license_key: DICTADO-PRO-FAMILY")
}

func TestActivateCommandRestoresLicenseFromSettings(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	key := license.Generate()
	_, _, err := runCommand(t, []string{"activate", key, "--data-dir", dataDir})
	require.NoError(t, err)

	// Losing the usage state must not lose the license.
	paths := platform.PathsFor(dataDir)
	require.NoError(t, os.Remove(paths.State))

	stdout, _, err := runCommand(t, []string{"status", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Contains(t, stdout, "Pro (unlimited)")
}

func TestActivateCommandForwardsToBackendServer(t *testing.T) {
	t.Parallel()

	var received struct {
		device string
		key    string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/activate", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received.device = r.Header.Get("X-Device-ID")
		received.key = body["licenseKey"]
		_, _ = w.Write([]byte(`{"success":true,"message":"License activated"}`))
	}))
	t.Cleanup(server.Close)

	dataDir := t.TempDir()
	_, _, err := runCommand(t, []string{"config", "set", "provider", "backend", "--data-dir", dataDir})
	require.NoError(t, err)
	_, _, err = runCommand(t, []string{"config", "set", "backend-url", server.URL, "--data-dir", dataDir})
	require.NoError(t, err)

	_, _, err = runCommand(t, []string{"activate", "dictado-abcd-efgh-ijkl", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Equal(t, readIdentity(t, dataDir), received.device)
	require.Equal(t, "DICTADO-ABCD-EFGH-IJKL", received.key)
}

func TestActivateCommandReportsServerRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"License already in use","code":"already_bound"}`))
	}))
	t.Cleanup(server.Close)

	dataDir := t.TempDir()
	_, _, err := runCommand(t, []string{"config", "set", "provider", "backend", "--data-dir", dataDir})
	require.NoError(t, err)
	_, _, err = runCommand(t, []string{"config", "set", "backend-url", server.URL, "--data-dir", dataDir})
	require.NoError(t, err)

	_, _, err = runCommand(t, []string{"activate", "DICTADO-ABCD-EFGH-IJKL", "--data-dir", dataDir})
	require.ErrorIs(t, err, license.ErrAlreadyBoundToOther)
	require.Contains(t, err.Error(), "already in use on another device")

	stdout, _, err := runCommand(t, []string{"config", "show", "--data-dir", dataDir})
	require.NoError(t, err)
	require.NotContains(t, stdout, "license_key")
}

func TestHistoryCommandListsAndClears(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	identity := readIdentity(t, dataDir)

	hist, err := history.Open(platform.PathsFor(dataDir).History)
	require.NoError(t, err)
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	require.NoError(t, hist.Append(context.Background(), identity, history.NewEntry("first note", at, 0.2, "groq")))
	require.NoError(t, hist.Append(context.Background(), identity, history.NewEntry(strings.Repeat("long ", 40), at.Add(time.Minute), 1.5, "openai")))

	stdout, _, err := runCommand(t, []string{"history", "--data-dir", dataDir})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "1.5 min")
	require.Contains(t, lines[0], "openai")
	require.True(t, strings.HasSuffix(lines[0], "…"))
	require.Contains(t, lines[1], "first note")

	stdout, _, err = runCommand(t, []string{"history", "--data-dir", dataDir, "--limit", "1"})
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 1)

	_, _, err = runCommand(t, []string{"history", "--data-dir", dataDir, "--clear"})
	require.NoError(t, err)

	stdout, _, err = runCommand(t, []string{"history", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Equal(t, "No transcriptions yet.\n", stdout)
}

func TestConfigShowMasksCredentials(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	_, _, err := runCommand(t, []string{"config", "set", "api-key", "sk-supersecret1234", "--data-dir", dataDir})
	require.NoError(t, err)
	_, _, err = runCommand(t, []string{"config", "set", "language", "ES", "--data-dir", dataDir})
	require.NoError(t, err)

	stdout, _, err := runCommand(t, []string{"config", "show", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Contains(t, stdout, "****1234")
	require.NotContains(t, stdout, "supersecret")
	require.Contains(t, stdout, "language: es")

	stdout, _, err = runCommand(t, []string{"config", "path", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Equal(t, platform.PathsFor(dataDir).Settings+"\n", stdout)
}

func TestRunFlagsDoNotPersist(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	_, _, err := runCommand(t, []string{"status", "--data-dir", dataDir, "--provider", "openai"})
	require.NoError(t, err)

	stdout, _, err := runCommand(t, []string{"config", "show", "--data-dir", dataDir})
	require.NoError(t, err)
	require.Contains(t, stdout, "provider: groq")
}

func TestLicenseGenerateCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"license", "generate", "-n", "3"})
	require.NoError(t, err)

	keys := strings.Fields(stdout)
	require.Len(t, keys, 3)
	for _, key := range keys {
		require.NoError(t, license.PrefixVerifier{}.Verify(key))
	}
	require.NotEqual(t, keys[0], keys[1])
}

func TestTokenIssueCommand(t *testing.T) {
	t.Parallel()

	const secret = "0123456789abcdef0123"
	stdout, _, err := runCommand(t, []string{"token", "issue", "--secret", secret, "--subject", "device-1", "--ttl", "1h", "--env-file", ""})
	require.NoError(t, err)

	claims, err := token.NewService(secret).Verify(strings.TrimSpace(stdout))
	require.NoError(t, err)
	require.Equal(t, "device-1", claims.Subject)
	require.NotNil(t, claims.ExpiresAt)
}
