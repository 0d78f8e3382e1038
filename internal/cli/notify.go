package cli

import (
	"context"
	"os"

	"github.com/fmueller/dictado/internal/session"
)

// notifier rings the terminal bell after a finished transcription when
// sound is enabled.
func notifier(sound, interactive bool) session.Deliverer {
	return func(_ context.Context, _ string) error {
		if !sound || !interactive {
			return nil
		}
		_, err := os.Stderr.WriteString("\a")
		return err
	}
}
