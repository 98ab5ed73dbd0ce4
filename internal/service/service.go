package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/easygo-dev/token/internal/alerting"
	"github.com/easygo-dev/token/internal/baseline"
	"github.com/easygo-dev/token/internal/config"
	"github.com/easygo-dev/token/internal/evaluate"
	"github.com/easygo-dev/token/internal/fetcher"
	"github.com/easygo-dev/token/internal/metrics"
	"github.com/easygo-dev/token/internal/scheduler"
	"github.com/easygo-dev/token/internal/storage"
)

// BaselineStore abstracts baseline persistence for the check cycle.
type BaselineStore interface {
	Load() (baseline.Record, error)
	Save(rec baseline.Record) error
}

// Service orchestrates fetching, evaluation, notification, and persistence.
type Service struct {
	scheduler  *scheduler.Scheduler
	fetcher    fetcher.MetricsFetcher
	baselines  BaselineStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	specs      []metrics.Spec
	logger     zerolog.Logger

	fallbackName   string
	fallbackSymbol string
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetch fetcher.MetricsFetcher, baselines BaselineStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:      sched,
		fetcher:        fetch,
		baselines:      baselines,
		alertStore:     alertStore,
		notifier:       notifier,
		specs:          cfg.MetricSpecs(),
		logger:         logger.With().Str("component", "service").Logger(),
		fallbackName:   cfg.Token.Name,
		fallbackSymbol: cfg.Token.Symbol,
	}
}

// Run begins the poll loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.CheckOnce)
}

// CheckOnce executes one full check cycle: fetch, evaluate, notify, persist.
// Only fetch (or baseline-load) failures are returned, which puts the loop
// into backoff; notification and save failures are logged and swallowed so a
// flaky channel or disk never stalls monitoring.
func (s *Service) CheckOnce(ctx context.Context) error {
	token, err := s.fetcher.FetchMetrics(ctx)
	if err != nil {
		// A failed fetch can leave a resource-heavy source (the browser
		// session) wedged; drop it and let the next cycle start clean.
		if r, ok := s.fetcher.(fetcher.Resetter); ok {
			r.Reset()
		}
		return fmt.Errorf("fetch metrics: %w", err)
	}

	if token.Name == "" {
		token.Name = s.fallbackName
	}
	if token.Symbol == "" {
		token.Symbol = s.fallbackSymbol
	}

	rec, err := s.baselines.Load()
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}

	result := evaluate.Evaluate(token, rec, s.specs)
	s.logCheck(token, result)

	now := time.Now().UTC()
	updated := rec
	updated.Current = token.Values.Clone()
	updated.LastUpdate = &now

	if result.ShouldNotify {
		// The baseline advances whether or not delivery below succeeds: a
		// dropped notification is never retried.
		updated.LastNotified = token.Values.Clone()

		if s.alertStore != nil {
			if _, err := s.alertStore.InsertAlert(ctx, buildAlertRecord(now, token, result)); err != nil {
				s.logger.Error().Err(err).Msg("failed to persist alert record")
			}
		}

		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, result.Message); err != nil {
				s.logger.Error().Err(err).Msg("failed to send notification")
			}
		}
	}

	if err := s.baselines.Save(updated); err != nil {
		s.logger.Error().Err(err).Msg("failed to save baseline")
	}

	return nil
}

func (s *Service) logCheck(token metrics.TokenData, result evaluate.Result) {
	event := s.logger.Info().
		Str("symbol", token.Symbol).
		Bool("should_notify", result.ShouldNotify)
	for _, change := range result.Changes {
		event = event.
			Str(change.Spec.Name, change.Current.String()).
			Str(change.Spec.Name+"_change_pct", change.PctChange.StringFixed(2))
	}
	event.Msg("check complete")
}

func buildAlertRecord(firedAt time.Time, token metrics.TokenData, result evaluate.Result) storage.AlertRecord {
	changes := make([]storage.AlertChange, 0, len(result.Changes))
	for _, change := range result.Changes {
		changes = append(changes, storage.AlertChange{
			Metric:    change.Spec.Name,
			Value:     change.Current,
			PctChange: change.PctChange,
			Direction: change.Direction,
			Exceeded:  change.Exceeded,
		})
	}

	return storage.AlertRecord{
		FiredAt: firedAt,
		Symbol:  token.Symbol,
		Changes: changes,
		Message: result.Message,
	}
}
