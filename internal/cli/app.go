// Package cli implements the invsync command line: the long-running local API
// server and one-shot maintenance commands over the same components.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-inventory-sync/internal/config"
	"github.com/tbourn/go-inventory-sync/internal/network"
	"github.com/tbourn/go-inventory-sync/internal/observability"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/repo"
	"github.com/tbourn/go-inventory-sync/internal/retry"
	"github.com/tbourn/go-inventory-sync/internal/services"
	"github.com/tbourn/go-inventory-sync/internal/syncer"
	"github.com/tbourn/go-inventory-sync/internal/sysutil"
)

// App holds the wired components: store → remote client → connectivity
// monitor → sync service → resource facade.
type App struct {
	Cfg     config.Config
	Store   *repo.Store
	Remote  *remote.Client
	Monitor *network.Monitor
	Sync    *syncer.Service
	Facade  *services.Facade

	closers  []io.Closer
	shutdown observability.Shutdown
}

// Bootstrap builds every component from cfg without starting background
// loops. A store that fails to open leaves the app in online-only mode.
func Bootstrap(ctx context.Context, cfg config.Config, version string) (*App, error) {
	a := &App{Cfg: cfg}
	a.closers = append(a.closers, sysutil.SetupLogging(cfg.Log))

	shutdown, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.shutdown = shutdown

	store, err := openStore(cfg.DBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.DBPath).Msg("local store unavailable; running online only")
	} else {
		a.Store = store
	}

	policy := retry.DefaultPolicy()
	policy.Attempts = cfg.Remote.RetryAttempts
	a.Remote = remote.New(cfg.Remote.BaseURL, cfg.Remote.Token,
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithRateLimit(cfg.Remote.RPS, cfg.Remote.Burst),
		remote.WithRetry(policy),
	)

	a.Monitor = network.New(a.Remote, network.Options{
		Interval:         cfg.Connectivity.ProbeInterval,
		Timeout:          cfg.Connectivity.ProbeTimeout,
		TrustOnlineEvent: cfg.Connectivity.TrustOnlineEvent,
	})

	a.Sync = syncer.New(a.Store, a.Remote, a.Monitor, syncer.Options{
		Interval:   cfg.Sync.Interval,
		MaxRetries: cfg.Sync.MaxRetries,
		Backoff: retry.Policy{
			Base:   cfg.Sync.BackoffBase,
			Max:    cfg.Sync.BackoffMax,
			Jitter: cfg.Sync.BackoffJitter,
		},
		InlineRetryMax:     cfg.Sync.InlineRetryMax,
		CompletedRetention: cfg.Sync.CompletedRetention,
	})

	a.Facade = services.New(services.Deps{
		Store:          a.Store,
		Remote:         a.Remote,
		Net:            a.Monitor,
		Sync:           a.Sync,
		CacheTTL:       cfg.CacheTTL,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	return a, nil
}

// openStore opens the database with statement tracing installed before the
// schema migration runs.
func openStore(path string) (*repo.Store, error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repo.ErrStoreUnavailable, err)
	}
	if err := observability.InstrumentDB(db); err != nil {
		log.Warn().Err(err).Msg("store tracing disabled")
	}
	s := repo.New(db)
	if err := repo.AutoMigrate(db); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: migrate: %v", repo.ErrStoreUnavailable, err)
	}
	return s, nil
}

// Start launches the connectivity probe loop and the periodic sync.
func (a *App) Start(ctx context.Context) {
	a.Monitor.Start(ctx)
	a.Sync.Start(ctx)
}

// Close stops the background loops, lets a running sync cycle finish, then
// releases the store, the tracer and the log file.
func (a *App) Close(ctx context.Context) error {
	a.Sync.Destroy()
	a.Monitor.Destroy()

	var errs []error
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// requireStore fails maintenance commands that only make sense with a store.
func (a *App) requireStore() error {
	if !a.Store.Available() {
		return fmt.Errorf("%w: %s", repo.ErrStoreUnavailable, a.Cfg.DBPath)
	}
	return nil
}
