package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/fmueller/dictado/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	audioField     = "audio"
	languageField  = "language"
	transcribeTag  = "server"
	defaultHistory = 20
)

// TranscribeResponse is the success body of POST /api/transcribe.
type TranscribeResponse struct {
	Text     string       `json:"text"`
	Duration float64      `json:"duration"`
	Status   quota.Status `json:"status"`
}

type activateRequest struct {
	LicenseKey string `json:"licenseKey" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": ServiceName,
		"version": s.opts.Version,
	})
}

func (s *Server) status(c *gin.Context) {
	status, err := s.opts.Quota.CheckQuota(c.Request.Context(), c.GetString(identityKey))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) transcribe(c *gin.Context) {
	identity := c.GetString(identityKey)

	audio, err := s.readAudio(c)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, "audio_too_large", fmt.Sprintf("Audio file exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		s.writeError(c, err)
		return
	}

	outcome, err := s.opts.Sessions.Transcribe(c.Request.Context(), session.Request{
		Identity: identity,
		Audio:    audio,
		Config:   s.opts.Transcription,
		Options:  provider.Options{Language: c.PostForm(languageField)},
		Source:   transcribeTag,
	})
	if errors.Is(err, quota.ErrQuotaExceeded) {
		body := gin.H{
			"error":   "Daily limit reached",
			"message": session.UserMessage(err),
			"code":    "quota_exceeded",
		}
		addStatus(body, outcome.Status)
		c.AbortWithStatusJSON(http.StatusForbidden, body)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TranscribeResponse{
		Text:     outcome.Text,
		Duration: outcome.DurationMinutes,
		Status:   outcome.Status,
	})
}

var errUploadTooLarge = errors.New("upload too large")

func (s *Server) readAudio(c *gin.Context) ([]byte, error) {
	header, err := c.FormFile(audioField)
	if err != nil {
		return nil, session.ErrNoAudio
	}
	if header.Size > s.opts.MaxUploadBytes {
		return nil, errUploadTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(audio)) > s.opts.MaxUploadBytes {
		return nil, errUploadTooLarge
	}
	return audio, nil
}

func (s *Server) activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "license_required", "License key required")
		return
	}

	identity := c.GetString(identityKey)
	if err := s.opts.Licenses.Activate(c.Request.Context(), identity, req.LicenseKey); err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.Info("license activated over http", zap.String("identity", identity))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "License activated"})
}

func (s *Server) generateLicense(c *gin.Context) {
	key := license.Generate()
	s.logger.Info("license generated")
	c.JSON(http.StatusOK, gin.H{"licenseKey": key})
}

func (s *Server) history(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []any{}})
		return
	}

	limit := defaultHistory
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			abortWithError(c, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.opts.History.List(c.Request.Context(), c.GetString(identityKey), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func addStatus(body gin.H, status quota.Status) {
	body["allowed"] = status.Allowed
	body["isPro"] = status.Pro
	body["used"] = status.UsedMinutes
	body["remaining"] = status.RemainingMinutes
	body["limit"] = status.DailyLimit
}
