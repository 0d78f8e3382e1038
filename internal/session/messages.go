package session

import (
	"errors"

	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
)

// UserMessage turns an error from a session, an activation or a dispatch
// into text suitable for the end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var providerErr *provider.Error
	switch {
	case errors.Is(err, license.ErrInvalidFormat):
		return "Invalid license key format. Keys look like DICTADO-XXXX-XXXX-XXXX."
	case errors.Is(err, license.ErrAlreadyBoundToOther):
		return "This license key is already in use on another device."
	case errors.Is(err, dispatch.ErrMissingConfiguration):
		return err.Error()
	case errors.Is(err, dispatch.ErrUnknownProvider):
		return err.Error()
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "You have used today's free transcription minutes. Activate a license for unlimited use."
	case errors.Is(err, ErrNoAudio):
		return "No audio was captured. Check your microphone and try again."
	case errors.Is(err, ErrAudioTooShort):
		return "The recording was too short. Please record again."
	case errors.Is(err, ErrSessionBusy):
		return "A recording is already in progress."
	case errors.Is(err, provider.ErrTimeout):
		return "The transcription service did not respond in time. Please try again."
	case errors.As(err, &providerErr):
		return providerErr.Message
	default:
		return err.Error()
	}
}
