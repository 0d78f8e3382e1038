package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DeviceIDHeader  = "X-Device-ID"
	AdminKeyHeader  = "X-Admin-Key"
	RequestIDHeader = "X-Request-Id"

	identityKey  = "identity"
	requestIDKey = "request_id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error(
					"panic recovered",
					zap.String("error", fmt.Sprint(recovered)),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal"})
			}
		}()
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if identity := c.GetString(identityKey); identity != "" {
			fields = append(fields, zap.String("identity", identity))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request completed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request completed", fields...)
		default:
			logger.Debug("request completed", fields...)
		}
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Device-ID, X-Admin-Key, X-Request-Id")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireDevice resolves the calling identity and creates its record on
// first contact.
func (s *Server) requireDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := strings.TrimSpace(c.GetHeader(DeviceIDHeader))
		if identity == "" {
			abortWithError(c, http.StatusBadRequest, "device_required", "Device ID required")
			return
		}
		if s.opts.Identities != nil {
			if err := s.opts.Identities.Touch(c.Request.Context(), identity); err != nil {
				s.logger.Error("failed to register identity", zap.String("identity", identity), zap.Error(err))
				abortWithError(c, http.StatusInternalServerError, "internal", "internal server error")
				return
			}
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// requireToken accepts a bearer token signed by the server. A token issued
// for a subject is only valid for that identity.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abortWithError(c, http.StatusUnauthorized, "token_required", "Bearer token required")
			return
		}

		claims, err := s.opts.Tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
			return
		}
		if claims.Subject != "" && claims.Subject != strings.TrimSpace(c.GetHeader(DeviceIDHeader)) {
			abortWithError(c, http.StatusForbidden, "token_mismatch", "Token was issued for another device")
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(AdminKeyHeader)
		if s.opts.AdminKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(s.opts.AdminKey)) != 1 {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		c.Next()
	}
}
