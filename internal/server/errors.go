package server

import (
	"errors"
	"net/http"

	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/fmueller/dictado/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a domain error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var providerErr *provider.Error
	switch {
	case errors.Is(err, license.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid_license"
	case errors.Is(err, license.ErrAlreadyBoundToOther):
		return http.StatusBadRequest, "already_bound"
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusForbidden, "quota_exceeded"
	case errors.Is(err, session.ErrNoAudio):
		return http.StatusBadRequest, "audio_required"
	case errors.Is(err, session.ErrAudioTooShort):
		return http.StatusBadRequest, "audio_too_short"
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict, "session_busy"
	case errors.Is(err, dispatch.ErrMissingConfiguration), errors.Is(err, dispatch.ErrUnknownProvider):
		return http.StatusServiceUnavailable, "not_configured"
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout, "provider_timeout"
	case errors.As(err, &providerErr):
		if providerErr.StatusCode >= http.StatusBadRequest {
			return providerErr.StatusCode, "provider_error"
		}
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError answers with the mapped status. Internal errors are not
// echoed to the client.
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", code), zap.String("identity", c.GetString(identityKey)), zap.Error(err))
	}
	message := session.UserMessage(err)
	switch {
	case status == http.StatusInternalServerError:
		message = "internal server error"
	case code == "not_configured":
		message = "transcription is not configured on this server"
	}
	abortWithError(c, status, code, message)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}
