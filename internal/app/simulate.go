package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/baseline"
	"github.com/easygo-dev/token/internal/fetcher"
	"github.com/easygo-dev/token/internal/metrics"
	"github.com/easygo-dev/token/internal/service"
)

// SimulateAlert runs a single check cycle against fixed metric values and a
// baseline primed so every metric change exceeds its threshold, pushing a real
// notification without touching the persisted baseline.
func (a *App) SimulateAlert(ctx context.Context, values map[string]decimal.Decimal) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	names := a.metricNames()
	set := metrics.NewSet(names...)
	for name, value := range values {
		found := false
		for _, known := range names {
			if known == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown metric %q (tracked: %v)", name, names)
		}
		set.Set(name, value)
	}

	// Prime the baseline at half of each simulated value so the computed
	// change is a guaranteed +100%.
	primed := baseline.NewRecord(names)
	two := decimal.NewFromInt(2)
	for _, name := range names {
		primed.LastNotified.Set(name, set.Get(name).Div(two))
	}

	static := &staticFetcher{data: metrics.TokenData{
		Name:   a.Config.Token.Name,
		Symbol: a.Config.Token.Symbol,
		Values: set,
	}}

	svc := service.New(a.Config, nil, static, &memoryBaseline{rec: primed}, nil, notifier, a.Logger)
	return svc.CheckOnce(ctx)
}

type staticFetcher struct {
	data metrics.TokenData
}

func (s *staticFetcher) FetchMetrics(ctx context.Context) (metrics.TokenData, error) {
	return s.data, nil
}

type memoryBaseline struct {
	rec baseline.Record
}

func (m *memoryBaseline) Load() (baseline.Record, error) {
	return m.rec, nil
}

func (m *memoryBaseline) Save(rec baseline.Record) error {
	m.rec = rec
	return nil
}

var _ fetcher.MetricsFetcher = (*staticFetcher)(nil)
var _ service.BaselineStore = (*memoryBaseline)(nil)
