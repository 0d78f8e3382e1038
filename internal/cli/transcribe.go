package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/dictado/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var copyToClipboard bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeAudio
			}

			transcript, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			app.deliverTranscript(cmd.Context(), cmd.OutOrStdout(), transcript, copyToClipboard)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindDataDirFlag(cmd, app)
	bindProviderFlags(cmd, app)
	bindCopyAndSilenceFlags(cmd, app)
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy transcript to clipboard")
	return cmd
}

// transcribeAudio runs one metered session for the file at audioPath.
func (a *appState) transcribeAudio(ctx context.Context, audioPath string) (string, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}

	if transcript, skipped, err := a.silenceGateTranscript(audioPath); err != nil {
		return "", err
	} else if skipped {
		return transcript, nil
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	core, err := a.openCore()
	if err != nil {
		return "", err
	}

	cfg := core.settings.DispatchConfig()
	a.log().Info("transcribing...", zap.String("audio", audioPath), zap.String("provider", string(cfg.Provider)), zap.String("language", core.settings.Language))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	outcome, err := core.sessions.Transcribe(ctx, session.Request{
		Identity: core.settings.Identity,
		Audio:    data,
		Config:   cfg,
		Options:  core.settings.ProviderOptions(),
		Source:   string(cfg.Provider),
	})
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", friendly(err)
	}
	a.log().Info(
		"transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Float64("minutes", outcome.DurationMinutes),
		zap.Bool("estimated", outcome.Estimated),
	)

	return outcome.Text, nil
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
