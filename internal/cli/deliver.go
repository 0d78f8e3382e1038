package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fmueller/dictado/internal/clipboard"
	"go.uber.org/zap"
)

type copyFunc func(ctx context.Context, value string) error

// deliverTranscript prints transcript to w and, when copyToClipboard is set,
// copies it. The transcript is already metered at this point, so a clipboard
// failure only leaves the text on stdout.
func (a *appState) deliverTranscript(ctx context.Context, w io.Writer, transcript string, copyToClipboard bool) {
	fmt.Fprintln(w, transcript)

	if isBlankTranscript(transcript) {
		a.log().Warn(noSpeechHint)
		if !a.copyEmpty {
			return
		}
	}
	if !copyToClipboard {
		return
	}

	copyFn := a.copyFn
	if copyFn == nil {
		copyFn = clipboard.CopyText
	}
	switch err := copyFn(ctx, transcript); {
	case err == nil:
		a.log().Info("transcript copied to clipboard")
	case errors.Is(err, clipboard.ErrUnavailable):
		a.log().Warn("clipboard tool unavailable; transcript left on stdout")
	default:
		a.log().Warn("failed to copy transcript to clipboard; transcript left on stdout", zap.Error(err))
	}
}
