package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fmueller/dictado/internal/config"
	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/history"
	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/platform"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/fmueller/dictado/internal/remote"
	"github.com/fmueller/dictado/internal/session"
	"github.com/fmueller/dictado/internal/store"
	"go.uber.org/zap"
)

// localCore is everything a CLI session needs, rooted in the data directory.
type localCore struct {
	paths    platform.Paths
	settings config.Settings
	licenses *license.Registry
	history  *history.Store
	// quota is the ledger, or the server's view in backend mode.
	quota session.Quota
	// remote is set when the provider is a dictado server.
	remote   *remote.Client
	sessions *session.Orchestrator
}

func (a *appState) paths() (platform.Paths, error) {
	if a.core != nil {
		return a.core.paths, nil
	}
	return platform.ResolvePaths(a.dataDir)
}

// openCore loads settings and local state once per process. Flags given for
// this run override the saved settings without persisting them.
func (a *appState) openCore() (*localCore, error) {
	if a.core != nil {
		return a.core, nil
	}

	paths, err := platform.ResolvePaths(a.dataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(paths.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", paths.DataDir, err)
	}

	settings, err := config.LoadSettings(paths.Settings)
	if err != nil {
		return nil, err
	}
	if err := a.applyOverrides(&settings); err != nil {
		return nil, err
	}

	state, err := store.OpenFile(paths.State)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(paths.History)
	if err != nil {
		return nil, err
	}

	registry := license.NewRegistry(state, license.PrefixVerifier{}, a.log())
	ledger := quota.NewLedger(state, registry, quota.Options{Now: a.clock()})

	// The saved key survives a lost state file.
	if settings.LicenseKey != "" && !registry.IsValid(context.Background(), settings.Identity) {
		if err := registry.Activate(context.Background(), settings.Identity, settings.LicenseKey); err != nil {
			a.log().Warn("saved license key could not be restored", zap.Error(err))
		}
	}

	core := &localCore{
		paths:    paths,
		settings: settings,
		licenses: registry,
		history:  hist,
		quota:    ledger,
	}
	if provider.Kind(settings.Provider) == provider.KindBackend && settings.BackendURL != "" {
		core.remote = remote.New(settings.BackendURL, settings.Token, settings.Identity, nil)
		core.quota = remoteQuota{client: core.remote, logger: a.log()}
	}

	core.sessions = session.New(session.Options{
		Dispatcher: dispatch.New(dispatch.Options{Logger: a.log()}),
		Quota:      core.quota,
		History:    hist,
		Deliverers: []session.Deliverer{notifier(settings.Sound, a.progressEnabled())},
		Logger:     a.log(),
		Now:        a.clock(),
	})

	a.core = core
	return core, nil
}

func (a *appState) applyOverrides(settings *config.Settings) error {
	if a.provider != "" {
		if err := settings.Set("provider", a.provider); err != nil {
			return err
		}
	}
	if a.language != "" {
		settings.Language = sanitizeLanguage(a.language)
	}
	if a.model != "" {
		settings.Model = a.model
	}
	return nil
}

// ensureTranscriptionReady rejects a run before recording when the provider
// is not configured or today's allowance is used up.
func (a *appState) ensureTranscriptionReady(ctx context.Context) error {
	core, err := a.openCore()
	if err != nil {
		return err
	}
	if err := dispatch.Validate(core.settings.DispatchConfig()); err != nil {
		return friendly(err)
	}

	status, err := core.quota.CheckQuota(ctx, core.settings.Identity)
	if err != nil {
		return err
	}
	return friendly(quota.Exceeded(status))
}

// remoteQuota defers metering to the server, which records usage itself
// when it serves an upload.
type remoteQuota struct {
	client *remote.Client
	logger *zap.Logger
}

// CheckQuota asks the server. When the server cannot be reached the session
// proceeds; the upload is refused there if the allowance is used up.
func (q remoteQuota) CheckQuota(ctx context.Context, _ string) (quota.Status, error) {
	status, err := q.client.Status(ctx)
	if err == nil {
		return status, nil
	}

	var providerErr *provider.Error
	if errors.As(err, &providerErr) || errors.Is(err, quota.ErrQuotaExceeded) {
		return quota.Status{}, err
	}
	q.logger.Warn("quota status unavailable; the server enforces the limit on upload", zap.Error(err))
	return quota.Status{Allowed: true, DailyLimit: quota.DailyLimitMinutes, RemainingMinutes: quota.DailyLimitMinutes}, nil
}

func (remoteQuota) RecordUsage(context.Context, string, float64) error {
	return nil
}
