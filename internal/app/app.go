package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/easygo-dev/token/internal/alerting"
	"github.com/easygo-dev/token/internal/baseline"
	"github.com/easygo-dev/token/internal/config"
	"github.com/easygo-dev/token/internal/fetcher"
	"github.com/easygo-dev/token/internal/scheduler"
	"github.com/easygo-dev/token/internal/service"
	"github.com/easygo-dev/token/internal/storage"
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

func (a *App) newFetcher() (fetcher.MetricsFetcher, error) {
	switch a.Config.Monitor.Source {
	case config.SourceGraphQL:
		return fetcher.NewGraphQL(fetcher.GraphQLOptions{
			Endpoint:   a.Config.Zapper.Endpoint,
			ClientName: a.Config.Zapper.ClientName,
			Address:    a.Config.Token.Address,
			Network:    a.Config.Token.Network,
			Timeout:    a.Config.Zapper.RequestTimeout,
		}, a.Logger), nil
	case config.SourceBrowser:
		return fetcher.NewBrowser(fetcher.BrowserOptions{
			PageURL:         a.Config.Browser.PageURL,
			WaitSelector:    a.Config.Browser.WaitSelector,
			NavigateTimeout: a.Config.Browser.NavigateTimeout,
			UserDataDir:     a.Config.Browser.UserDataDir,
		}, a.Logger), nil
	case config.SourceContract:
		return fetcher.NewContract(fetcher.ContractOptions{
			RPCURL:         a.Config.Ethereum.RPCURL,
			TokenAddress:   a.Config.Ethereum.TokenAddress,
			NonCirculating: a.Config.Ethereum.NonCirculating,
			Timeout:        a.Config.Ethereum.RequestTimeout,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown monitor.source %q", a.Config.Monitor.Source)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newBaselineStore() *baseline.Store {
	return baseline.NewStore(a.Config.Baseline.Path, a.metricNames(), a.Logger)
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
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Debug().Msg("database.dsn not configured; alert audit disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	fetch, err := a.newFetcher()
	if err != nil {
		return err
	}
	if closer, ok := fetch.(fetcher.Closer); ok {
		defer closer.Close()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.EffectiveInterval(),
		Backoff:      a.Config.Monitor.Backoff,
		StartupDelay: a.Config.Monitor.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()
	baselines := a.newBaselineStore()

	var alertStore storage.AlertStore
	if store != nil {
		alertStore = store
	}

	svc := service.New(a.Config, sched, fetch, baselines, alertStore, notifier, a.Logger)

	a.Logger.Info().
		Str("source", a.Config.Monitor.Source).
		Dur("interval", a.Config.EffectiveInterval()).
		Str("token", a.Config.Token.Address).
		Msg("starting monitoring service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// AlertsOptions configure the alerts listing command.
type AlertsOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting recorded alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// metricNames lists the tracked metric names in configured order.
func (a *App) metricNames() []string {
	specs := a.Config.MetricSpecs()
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	return names
}
