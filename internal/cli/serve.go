package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fmueller/dictado/internal/config"
	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/history"
	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/logging"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/fmueller/dictado/internal/server"
	"github.com/fmueller/dictado/internal/session"
	"github.com/fmueller/dictado/internal/store"
	"github.com/fmueller/dictado/internal/token"
	"github.com/fmueller/dictado/internal/version"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	configFile string
	envFile    string
	port       string
}

func newServeCmd(app *appState) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the usage metering and transcription server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.serve(ctx, *opts)
		},
	}

	bindLoggingFlags(cmd, app)
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Server config file (default ./dictado.yaml when present)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	cmd.Flags().StringVar(&opts.port, "port", "", "Listen port; overrides PORT and the config file")
	return cmd
}

func loadServerConfig(opts serveOptions) (config.Server, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Server{}, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}

	cfg, err := config.LoadServer(opts.configFile)
	if err != nil {
		return config.Server{}, err
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}
	return cfg, nil
}

func (a *appState) serve(ctx context.Context, opts serveOptions) error {
	cfg, err := loadServerConfig(opts)
	if err != nil {
		return err
	}

	// Server logs are JSON unless the caller asked for verbose console output.
	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs || !a.verbose, Name: "server"})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	gin.SetMode(ginMode(a.verbose))

	srv, closeStore, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	return srv.ListenAndServe(ctx, ":"+cfg.Port)
}

// ginMode keeps gin's route dump and debug warnings out of the JSON logs
// unless verbose output was requested.
func ginMode(verbose bool) string {
	if verbose {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

// buildServer wires the store, ledger, registry and session orchestrator
// behind the HTTP surface.
func buildServer(ctx context.Context, cfg config.Server, logger *zap.Logger) (*server.Server, func() error, error) {
	backend, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	hist, err := history.Open(cfg.HistoryFile)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}

	registry := license.NewRegistry(backend, license.PrefixVerifier{}, logger)
	ledger := quota.NewLedger(backend, registry, quota.Options{DailyLimit: cfg.DailyLimit})
	sessions := session.New(session.Options{
		Dispatcher: dispatch.New(dispatch.Options{
			HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
			Logger:     logger,
		}),
		Quota:   ledger,
		History: hist,
		Logger:  logger,
	})

	var tokens *token.Service
	if cfg.TokenSecret != "" {
		tokens = token.NewService(cfg.TokenSecret)
	}
	if cfg.GroqAPIKey == "" {
		logger.Warn("no Groq API key configured; transcription requests will fail until GROQ_API_KEY is set")
	}
	if cfg.AdminKey == "" {
		logger.Warn("no admin key configured; license minting is disabled")
	}

	srv := server.New(server.Options{
		Sessions:   sessions,
		Quota:      ledger,
		Licenses:   registry,
		History:    hist,
		Identities: backend,
		Transcription: dispatch.Config{
			Provider: provider.KindGroq,
			APIKey:   cfg.GroqAPIKey,
		},
		AdminKey:       cfg.AdminKey,
		Tokens:         tokens,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Version:        version.Release(),
		Logger:         logger,
	})

	logger.Info(
		"server configured",
		zap.String("store", cfg.Store.Driver),
		zap.Float64("daily_limit", cfg.DailyLimit),
		zap.Bool("token_auth", tokens != nil),
	)
	return srv, backend.Close, nil
}
