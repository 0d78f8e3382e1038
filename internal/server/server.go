// Package server exposes usage status, transcription, license activation
// and license minting over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/history"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/fmueller/dictado/internal/session"
	"github.com/fmueller/dictado/internal/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ServiceName           = "Dictado API"
	DefaultMaxUploadBytes = 25 << 20
	shutdownTimeout       = 10 * time.Second
)

type Sessions interface {
	Transcribe(ctx context.Context, req session.Request) (session.Outcome, error)
}

type QuotaChecker interface {
	CheckQuota(ctx context.Context, identity string) (quota.Status, error)
}

type Activator interface {
	Activate(ctx context.Context, identity, rawKey string) error
}

type HistoryReader interface {
	List(ctx context.Context, identity string, limit int) ([]history.Entry, error)
}

type Identities interface {
	Touch(ctx context.Context, identity string) error
}

type Options struct {
	Sessions   Sessions
	Quota      QuotaChecker
	Licenses   Activator
	History    HistoryReader
	Identities Identities
	// Transcription is the provider configuration used for uploads.
	Transcription dispatch.Config
	// AdminKey guards license minting. Empty disables the endpoint.
	AdminKey string
	// Tokens, when set, requires a bearer token on every device endpoint.
	Tokens         *token.Service
	MaxUploadBytes int64
	Version        string
	Logger         *zap.Logger
}

type Server struct {
	opts   Options
	logger *zap.Logger
	engine *gin.Engine
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{opts: opts, logger: opts.Logger}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(requestID(), recovery(s.logger), requestLogger(s.logger), cors())

	engine.GET("/", s.health)

	api := engine.Group("/api")
	api.POST("/admin/generate-license", s.requireAdmin(), s.generateLicense)

	device := api.Group("")
	if s.opts.Tokens != nil {
		device.Use(s.requireToken())
	}
	device.Use(s.requireDevice())
	device.GET("/status", s.status)
	device.POST("/transcribe", s.transcribe)
	device.POST("/activate", s.activate)
	device.GET("/history", s.history)

	return engine
}

// ListenAndServe serves on addr until ctx is cancelled, then drains open
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.logger.Info("server listening", zap.String("addr", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return group.Wait()
}
