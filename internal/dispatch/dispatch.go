// Package dispatch routes a transcription to the configured provider variant.
// It holds no state and performs no quota logic.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fmueller/dictado/internal/provider"
	"go.uber.org/zap"
)

var (
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrUnknownProvider      = errors.New("unknown provider")
)

// Config selects a provider and carries the credentials it needs.
type Config struct {
	Provider   provider.Kind
	APIKey     string
	BackendURL string
	Token      string
	DeviceID   string
}

type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	// BaseURLs overrides the endpoint of the API-key variants.
	BaseURLs map[provider.Kind]string
}

type variant struct {
	requires func(Config) error
	build    func(Config, provider.ClientOptions) provider.Transcriber
}

var variants = map[provider.Kind]variant{
	provider.KindOpenAI: {
		requires: requireAPIKey("OpenAI"),
		build: func(cfg Config, opts provider.ClientOptions) provider.Transcriber {
			return provider.NewOpenAI(cfg.APIKey, opts)
		},
	},
	provider.KindGroq: {
		requires: requireAPIKey("Groq"),
		build: func(cfg Config, opts provider.ClientOptions) provider.Transcriber {
			return provider.NewGroq(cfg.APIKey, opts)
		},
	},
	provider.KindBackend: {
		requires: func(cfg Config) error {
			if strings.TrimSpace(cfg.BackendURL) == "" {
				return fmt.Errorf("%w: backend URL required; run `dictado config set backend-url <url>`", ErrMissingConfiguration)
			}
			return nil
		},
		build: func(cfg Config, opts provider.ClientOptions) provider.Transcriber {
			return provider.NewBackend(cfg.BackendURL, cfg.Token, cfg.DeviceID, opts)
		},
	},
}

func requireAPIKey(label string) func(Config) error {
	return func(cfg Config) error {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return fmt.Errorf("%w: %s API key required; run `dictado config set api-key <key>`", ErrMissingConfiguration, label)
		}
		return nil
	}
}

type Dispatcher struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{opts: opts, logger: logger}
}

// Validate reports configuration problems without touching the network.
func Validate(cfg Config) error {
	v, ok := variants[cfg.Provider]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return v.requires(cfg)
}

// Resolve validates cfg and builds the matching transcriber.
func (d *Dispatcher) Resolve(cfg Config) (provider.Transcriber, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	clientOpts := provider.ClientOptions{
		HTTPClient: d.opts.HTTPClient,
		Logger:     d.logger,
		BaseURL:    d.opts.BaseURLs[cfg.Provider],
	}
	return variants[cfg.Provider].build(cfg, clientOpts), nil
}

// Dispatch propagates the adapter's result or error unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, audio []byte, cfg Config, opts provider.Options) (provider.Result, error) {
	transcriber, err := d.Resolve(cfg)
	if err != nil {
		return provider.Result{}, err
	}

	d.logger.Debug("dispatching transcription", zap.String("provider", transcriber.Name()), zap.Int("bytes", len(audio)))
	return transcriber.Transcribe(ctx, audio, opts)
}
