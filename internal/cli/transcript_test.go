package cli

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestIsBlankTranscript(t *testing.T) {
	t.Parallel()

	blank := map[string]bool{
		"":                 true,
		"   \n\t ":         true,
		"[BLANK_AUDIO]":    true,
		" [blank_audio] ":  true,
		"Hello world":      false,
		"[BLANK_AUDIO] hi": false,
	}
	for input, want := range blank {
		require.Equal(t, want, isBlankTranscript(input), "%q", input)
	}
}

func TestSanitizeLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{in: "", want: "auto"},
		{in: "   ", want: "auto"},
		{in: " EN ", want: "en"},
		{in: "De", want: "de"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, sanitizeLanguage(tc.in), "%q", tc.in)
	}
}

func TestPreviewCollapsesAndTruncates(t *testing.T) {
	t.Parallel()

	require.Equal(t, "one two", preview(" one\n\ttwo "))

	long := preview(strings.Repeat("ñ", historyPreviewRunes+5))
	require.Equal(t, historyPreviewRunes, utf8.RuneCountInString(long))
	require.True(t, strings.HasSuffix(long, "…"))
}
