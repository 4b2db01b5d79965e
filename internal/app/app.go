package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ratio-band-alerts/internal/alerting"
	"ratio-band-alerts/internal/config"
	"ratio-band-alerts/internal/fetcher"
	"ratio-band-alerts/internal/httpserver"
	"ratio-band-alerts/internal/monitor"
	"ratio-band-alerts/internal/prefs"
	"ratio-band-alerts/internal/scheduler"
	"ratio-band-alerts/internal/storage"
)

const (
	baseAsset  = "WAL"
	quoteAsset = "SUI"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.PriceFetcher {
	src := a.Config.Sources
	bybit := fetcher.NewBybit(fetcher.BybitOptions{
		Endpoints: map[string]string{
			baseAsset:  src.WALURL,
			quoteAsset: src.SUIURL,
		},
		Timeout:   src.RequestTimeout,
		UserAgent: src.UserAgent,
	}, a.Logger)

	if src.RetryAttempts <= 1 {
		return bybit
	}
	return fetcher.NewRetrying(bybit, fetcher.RetryOptions{
		Attempts: src.RetryAttempts,
		Delay:    src.RetryDelay,
	}, a.Logger)
}

func (a *App) newNotifier() (alerting.Notifier, []string) {
	cfg := a.Config.Alerting

	var services []alerting.Notifier
	var channels []string

	if cfg.Telegram.Enabled {
		services = append(services, alerting.NewTelegramNotifier(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.APIBase,
			cfg.DashboardURL,
			cfg.Timeout,
			a.Logger,
		))
		channels = append(channels, "telegram")
	}

	if cfg.Email.Enabled {
		services = append(services, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:         cfg.Email.Host,
			Port:         cfg.Email.Port,
			Username:     cfg.Email.Username,
			Password:     cfg.Email.Password,
			From:         cfg.Email.From,
			DashboardURL: cfg.DashboardURL,
		}, a.Logger))
		channels = append(channels, "email")
	}

	return alerting.NewMultiNotifier(services...), channels
}

func (a *App) newPrefsStore() prefs.Store {
	return prefs.NewFileStore(a.Config.Preferences.Path, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newMonitor(store *storage.Store) *monitor.Monitor {
	notifier, channels := a.newNotifier()

	var samples storage.RatioSampleStore
	var alerts storage.AlertStore
	if store != nil {
		samples = store
		alerts = store
	}

	return monitor.New(monitor.Options{
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		Channels:   channels,
	}, a.newFetcher(), a.newPrefsStore(), notifier, samples, alerts, a.Logger)
}

func (a *App) newScheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Immediate:    a.Config.Scheduler.Immediate,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
}

// Run executes the long-running monitoring loop without the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; ratio history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	mon := a.newMonitor(store)

	a.Logger.Info().Msg("starting monitoring service")
	err = a.newScheduler().Run(ctx, mon.Tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Serve runs the dashboard API alongside the monitoring loop.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	mon := a.newMonitor(store)
	api := httpserver.New(a.newPrefsStore(), a.newFetcher(), mon, baseAsset, quoteAsset, a.Logger)

	srv := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      api.Routes(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- a.newScheduler().Run(ctx, mon.Tick)
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
		cancel()
		<-loopErr
	case runErr = <-loopErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("http shutdown failed")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	a.Logger.Info().Msg("server stopped")
	return nil
}

// CheckOnce runs a single monitor cycle and reports the outcome. This is the
// entry point for external schedulers (cron and similar).
func (a *App) CheckOnce(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	mon := a.newMonitor(store)
	outcome, err := mon.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	event := a.Logger.Info().Bool("notified", outcome.Notified)
	if outcome.Skipped {
		event = event.Str("skipped", outcome.Reason)
	} else {
		event = event.Str("ratio", outcome.Ratio.StringFixed(6)).Str("state", string(outcome.State))
	}
	event.Msg("check complete")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// PruneOptions configure history retention cleanup.
type PruneOptions struct {
	KeepFor time.Duration
}
