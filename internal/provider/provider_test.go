package provider

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseKind(" Groq ")
	require.NoError(t, err)
	require.Equal(t, KindGroq, kind)

	kind, err = ParseKind("backend")
	require.NoError(t, err)
	require.Equal(t, KindBackend, kind)

	_, err = ParseKind("deepgram")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown provider")
}

func TestLanguageHint(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", languageHint(""))
	require.Equal(t, "", languageHint("auto"))
	require.Equal(t, "", languageHint(" AUTO "))
	require.Equal(t, "es", languageHint("ES"))
}

func TestErrorMessageIncludesStatus(t *testing.T) {
	t.Parallel()

	err := statusError("groq", 429, "", nil)
	require.Equal(t, "transcription failed: Too Many Requests", err.Message)
	require.Equal(t, "groq: transcription failed: Too Many Requests (status 429)", err.Error())
}
