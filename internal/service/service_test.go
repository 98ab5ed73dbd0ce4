package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/baseline"
	"github.com/easygo-dev/token/internal/config"
	"github.com/easygo-dev/token/internal/metrics"
	"github.com/easygo-dev/token/internal/storage"
)

var testNames = []string{metrics.Price, metrics.MarketCap}

type stubFetcher struct {
	data   metrics.TokenData
	err    error
	resets int
}

func (f *stubFetcher) FetchMetrics(ctx context.Context) (metrics.TokenData, error) {
	if f.err != nil {
		return metrics.TokenData{}, f.err
	}
	return f.data, nil
}

func (f *stubFetcher) Reset() {
	f.resets++
}

type recordingBaseline struct {
	rec     baseline.Record
	saves   []baseline.Record
	saveErr error
}

func (b *recordingBaseline) Load() (baseline.Record, error) {
	return b.rec, nil
}

func (b *recordingBaseline) Save(rec baseline.Record) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saves = append(b.saves, rec)
	b.rec = rec
	return nil
}

type stubNotifier struct {
	sent []string
	err  error
}

func (n *stubNotifier) Notify(ctx context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

type stubAlertStore struct {
	inserted []storage.AlertRecord
	err      error
}

func (s *stubAlertStore) InsertAlert(ctx context.Context, rec storage.AlertRecord) (storage.AlertRecord, error) {
	if s.err != nil {
		return storage.AlertRecord{}, s.err
	}
	s.inserted = append(s.inserted, rec)
	return rec, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Monitor:  config.MonitorConfig{Source: config.SourceGraphQL},
		Token:    config.TokenConfig{Name: "Example Token", Symbol: "EXT"},
		Alerting: config.AlertingConfig{PriceThreshold: 5, McapThreshold: 5},
	}
}

func tokenData(price, mcap int64) metrics.TokenData {
	values := metrics.NewSet(testNames...)
	values.Set(metrics.Price, decimal.NewFromInt(price))
	values.Set(metrics.MarketCap, decimal.NewFromInt(mcap))
	return metrics.TokenData{Name: "Example Token", Symbol: "EXT", Values: values}
}

func notifiedRecord(price, mcap int64) baseline.Record {
	rec := baseline.NewRecord(testNames)
	rec.Current.Set(metrics.Price, decimal.NewFromInt(price))
	rec.Current.Set(metrics.MarketCap, decimal.NewFromInt(mcap))
	rec.LastNotified.Set(metrics.Price, decimal.NewFromInt(price))
	rec.LastNotified.Set(metrics.MarketCap, decimal.NewFromInt(mcap))
	return rec
}

func TestCheckNotifiesAndAdvancesBaseline(t *testing.T) {
	fetch := &stubFetcher{data: tokenData(106, 5000)}
	baselines := &recordingBaseline{rec: notifiedRecord(100, 5000)}
	notifier := &stubNotifier{}
	alerts := &stubAlertStore{}

	svc := New(testConfig(), nil, fetch, baselines, alerts, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("cycle should succeed: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0], "Price Change: 6.00%") {
		t.Fatalf("notification missing price change: %q", notifier.sent[0])
	}

	if len(baselines.saves) != 1 {
		t.Fatalf("expected one save, got %d", len(baselines.saves))
	}
	saved := baselines.saves[0]
	if !saved.Current.Get(metrics.Price).Equal(decimal.NewFromInt(106)) {
		t.Fatalf("current price not updated: %s", saved.Current.Get(metrics.Price).String())
	}
	if !saved.LastNotified.Get(metrics.Price).Equal(decimal.NewFromInt(106)) {
		t.Fatalf("baseline must advance to just-observed value: %s", saved.LastNotified.Get(metrics.Price).String())
	}
	if saved.LastUpdate == nil {
		t.Fatal("last update must be stamped")
	}

	if len(alerts.inserted) != 1 {
		t.Fatalf("expected one alert record, got %d", len(alerts.inserted))
	}
	if alerts.inserted[0].Symbol != "EXT" {
		t.Fatalf("alert record symbol mismatch: %q", alerts.inserted[0].Symbol)
	}
}

func TestCheckHoldsBaselineBelowThreshold(t *testing.T) {
	fetch := &stubFetcher{data: tokenData(104, 5000)}
	baselines := &recordingBaseline{rec: notifiedRecord(100, 5000)}
	notifier := &stubNotifier{}

	svc := New(testConfig(), nil, fetch, baselines, nil, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("cycle should succeed: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Fatalf("4%% move must not notify, got %d messages", len(notifier.sent))
	}

	saved := baselines.saves[0]
	if !saved.Current.Get(metrics.Price).Equal(decimal.NewFromInt(104)) {
		t.Fatalf("current must track the latest poll: %s", saved.Current.Get(metrics.Price).String())
	}
	if !saved.LastNotified.Get(metrics.Price).Equal(decimal.NewFromInt(100)) {
		t.Fatalf("baseline must hold without notification: %s", saved.LastNotified.Get(metrics.Price).String())
	}
}

func TestCheckFirstRunSavesWithoutNotifying(t *testing.T) {
	fetch := &stubFetcher{data: tokenData(100, 5000)}
	baselines := &recordingBaseline{rec: baseline.NewRecord(testNames)}
	notifier := &stubNotifier{}

	svc := New(testConfig(), nil, fetch, baselines, nil, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("cycle should succeed: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Fatal("first run must not notify")
	}
	saved := baselines.saves[0]
	if !saved.Current.Get(metrics.Price).Equal(decimal.NewFromInt(100)) {
		t.Fatalf("current price not recorded: %s", saved.Current.Get(metrics.Price).String())
	}
	if !saved.LastNotified.Get(metrics.Price).IsZero() {
		t.Fatal("baseline must stay zero until a notification fires")
	}
}

func TestCheckFetchFailureTouchesNothing(t *testing.T) {
	fetch := &stubFetcher{err: errors.New("api down")}
	baselines := &recordingBaseline{rec: notifiedRecord(100, 5000)}
	notifier := &stubNotifier{}

	svc := New(testConfig(), nil, fetch, baselines, nil, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err == nil {
		t.Fatal("fetch failure must surface to the loop for backoff")
	}

	if len(baselines.saves) != 0 {
		t.Fatal("fetch failure must not write the baseline")
	}
	if len(notifier.sent) != 0 {
		t.Fatal("fetch failure must not notify")
	}
	if fetch.resets != 1 {
		t.Fatalf("failed fetch must reset the source, resets=%d", fetch.resets)
	}
}

// A failed delivery still advances the baseline, so the missed alert is never
// retried. This mirrors the long-standing behaviour of the monitor and is
// asserted here so a change to it is a deliberate decision.
func TestCheckAdvancesBaselineWhenNotifyFails(t *testing.T) {
	fetch := &stubFetcher{data: tokenData(106, 5000)}
	baselines := &recordingBaseline{rec: notifiedRecord(100, 5000)}
	notifier := &stubNotifier{err: errors.New("telegram unreachable")}

	svc := New(testConfig(), nil, fetch, baselines, nil, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("notify failure must not fail the cycle: %v", err)
	}

	saved := baselines.saves[0]
	if !saved.LastNotified.Get(metrics.Price).Equal(decimal.NewFromInt(106)) {
		t.Fatalf("baseline advances even when delivery fails: %s", saved.LastNotified.Get(metrics.Price).String())
	}
}

func TestCheckSaveFailureIsSwallowed(t *testing.T) {
	fetch := &stubFetcher{data: tokenData(106, 5000)}
	baselines := &recordingBaseline{rec: notifiedRecord(100, 5000), saveErr: errors.New("disk full")}
	notifier := &stubNotifier{}

	svc := New(testConfig(), nil, fetch, baselines, nil, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("save failure must not fail the cycle: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatal("notification must still go out when the save fails")
	}
}

func TestCheckAlertStoreFailureIsSwallowed(t *testing.T) {
	fetch := &stubFetcher{data: tokenData(106, 5000)}
	baselines := &recordingBaseline{rec: notifiedRecord(100, 5000)}
	notifier := &stubNotifier{}
	alerts := &stubAlertStore{err: errors.New("db down")}

	svc := New(testConfig(), nil, fetch, baselines, alerts, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("audit failure must not fail the cycle: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatal("notification must still go out when the audit insert fails")
	}
}

func TestRepeatedCheckDoesNotReNotify(t *testing.T) {
	fetch := &stubFetcher{data: tokenData(106, 5000)}
	baselines := &recordingBaseline{rec: notifiedRecord(100, 5000)}
	notifier := &stubNotifier{}

	svc := New(testConfig(), nil, fetch, baselines, nil, notifier, zerolog.Nop())

	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if err := svc.CheckOnce(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("identical input after an advance must not re-notify, got %d messages", len(notifier.sent))
	}
}
