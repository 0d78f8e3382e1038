package cli

import "strings"

// blankAudioToken is printed in place of a transcript when nothing was said.
const blankAudioToken = "[BLANK_AUDIO]"

const noSpeechHint = "No speech detected. Check mic mute and selected input device, then try again."

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	return trimmed == "" || strings.EqualFold(trimmed, blankAudioToken)
}
