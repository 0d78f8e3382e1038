package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fmueller/dictado/internal/cli"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/stretchr/testify/require"
)

func TestIsUsageError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: errors.New("unknown command \"bad\" for \"dictado\""), want: true},
		{err: errors.New("unknown flag: --oops"), want: true},
		{err: errors.New("accepts 1 arg(s), received 0"), want: true},
		{err: errors.New("groq transcription failed: context deadline exceeded")},
		{err: nil},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, isUsageError(tc.err), "%v", tc.err)
	}
}

func TestHelpHintTarget(t *testing.T) {
	t.Parallel()

	root := cli.NewRootCmd()
	require.Equal(t, "dictado", helpHintTarget(root, []string{"--badflag"}))
	require.Equal(t, "dictado", helpHintTarget(root, []string{"badcmd"}))
	require.Equal(t, "dictado transcribe", helpHintTarget(root, []string{"transcribe"}))
	require.Equal(t, "dictado transcribe", helpHintTarget(root, []string{"transcribe", "--copy"}))
	require.Equal(t, "dictado license generate", helpHintTarget(root, []string{"license", "generate"}))
	require.Equal(t, "dictado", helpHintTarget(nil, nil))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, exitQuota, exitCode(fmt.Errorf("wrapped: %w", quota.ErrQuotaExceeded)))
	require.Equal(t, exitFailure, exitCode(errors.New("boom")))
}
