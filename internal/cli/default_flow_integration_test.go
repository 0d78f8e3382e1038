//go:build integration

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/dictado/internal/quota"
	"github.com/stretchr/testify/require"
)

const flowAudioPath = "/tmp/dictado-audio.wav"

// flowApp wires every hook to a recorder of calls so tests can assert the
// order the default flow runs them in.
func flowApp(out *bytes.Buffer, order *[]string, transcript string, copyErr error) *appState {
	return &appState{
		out: out,
		preflightFn: func(context.Context) error {
			*order = append(*order, "preflight")
			return nil
		},
		recordFn: func(_ context.Context, _ recordOptions) (string, error) {
			*order = append(*order, "record")
			return flowAudioPath, nil
		},
		transcribeFn: func(_ context.Context, audioPath string) (string, error) {
			*order = append(*order, "transcribe:"+audioPath)
			return transcript, nil
		},
		copyFn: func(_ context.Context, value string) error {
			*order = append(*order, "copy:"+value)
			return copyErr
		},
	}
}

func TestRunDefaultFlowSuccess(t *testing.T) {
	var order []string
	out := new(bytes.Buffer)

	err := flowApp(out, &order, "hello world", nil).runDefault(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello world\n", out.String())
	require.Equal(t, []string{
		"preflight",
		"record",
		"transcribe:" + flowAudioPath,
		"copy:hello world",
	}, order)
}

func TestRunDefaultClipboardFailureIsNonFatal(t *testing.T) {
	var order []string
	out := new(bytes.Buffer)

	err := flowApp(out, &order, "clipboard fallback", errors.New("clipboard command failed")).runDefault(context.Background())
	require.NoError(t, err)
	require.Equal(t, "clipboard fallback\n", out.String())
	require.Equal(t, "copy:clipboard fallback", order[len(order)-1])
}

func TestRunDefaultBlankTranscriptCopy(t *testing.T) {
	tests := []struct {
		name      string
		copyEmpty bool
		wantCopy  bool
	}{
		{name: "skipped by default"},
		{name: "copied with copy-empty", copyEmpty: true, wantCopy: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var order []string
			out := new(bytes.Buffer)

			app := flowApp(out, &order, blankAudioToken, nil)
			app.copyEmpty = tc.copyEmpty

			require.NoError(t, app.runDefault(context.Background()))
			require.Equal(t, blankAudioToken+"\n", out.String())
			if tc.wantCopy {
				require.Contains(t, order, "copy:"+blankAudioToken)
			} else {
				require.NotContains(t, order, "copy:"+blankAudioToken)
			}
		})
	}
}

func TestRunDefaultStopsBeforeRecordingWhenQuotaIsUsed(t *testing.T) {
	var order []string
	out := new(bytes.Buffer)

	app := flowApp(out, &order, "unused", nil)
	app.preflightFn = func(context.Context) error {
		order = append(order, "preflight")
		return friendly(quota.Exceeded(quota.Status{UsedMinutes: 5, DailyLimit: 5}))
	}

	err := app.runDefault(context.Background())
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)
	require.Equal(t, []string{"preflight"}, order)
	require.Empty(t, out.String())
}

func TestRunDefaultSkipsTranscribeWhenRecordingIsSilent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.wav")
	require.NoError(t, os.WriteFile(path, monoWAV(make([]int16, 16000)), 0o644))

	var order []string
	out := new(bytes.Buffer)

	app := flowApp(out, &order, "should-not-happen", nil)
	app.silenceGate = true
	app.silenceDBFS = -65
	app.recordFn = func(_ context.Context, _ recordOptions) (string, error) {
		return path, nil
	}

	require.NoError(t, app.runDefault(context.Background()))
	require.Equal(t, []string{"preflight"}, order)
	require.Equal(t, blankAudioToken+"\n", out.String())
}
