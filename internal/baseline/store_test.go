package baseline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/metrics"
)

var testNames = []string{metrics.Price, metrics.MarketCap}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	return NewStore(path, testNames, zerolog.Nop())
}

func TestLoadMissingFileReturnsZeroRecord(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	if !rec.Current.Get(metrics.Price).IsZero() || !rec.LastNotified.Get(metrics.Price).IsZero() {
		t.Fatal("fresh record must start zeroed")
	}
	if rec.LastUpdate != nil {
		t.Fatal("fresh record must have no last_update")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecord(testNames)
	rec.Current.Set(metrics.Price, decimal.RequireFromString("1.25"))
	rec.Current.Set(metrics.MarketCap, decimal.NewFromInt(500000))
	rec.LastNotified.Set(metrics.Price, decimal.RequireFromString("1.10"))
	rec.LastUpdate = &now

	if err := store.Save(rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.Current.Get(metrics.Price).Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("price mismatch: %s", loaded.Current.Get(metrics.Price).String())
	}
	if !loaded.LastNotified.Get(metrics.Price).Equal(decimal.RequireFromString("1.10")) {
		t.Fatalf("last notified price mismatch: %s", loaded.LastNotified.Get(metrics.Price).String())
	}
	if !loaded.LastNotified.Get(metrics.MarketCap).IsZero() {
		t.Fatal("unset last notified market cap should stay zero")
	}
	if loaded.LastUpdate == nil || !loaded.LastUpdate.Equal(now) {
		t.Fatalf("last_update mismatch: %v", loaded.LastUpdate)
	}
}

func TestSaveWritesFlatDocument(t *testing.T) {
	store := newTestStore(t)

	now := time.Now().UTC()
	rec := NewRecord(testNames)
	rec.Current.Set(metrics.Price, decimal.NewFromInt(100))
	rec.LastUpdate = &now

	if err := store.Save(rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	raw, err := os.ReadFile(store.path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("persisted file is not valid JSON: %v", err)
	}

	for _, key := range []string{"price", "market_cap", "last_notification_price", "last_notification_market_cap", "last_update"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("persisted document missing key %q: %v", key, doc)
		}
	}
	if price, ok := doc["price"].(float64); !ok || price != 100 {
		t.Fatalf("price must be persisted as a bare number, got %#v", doc["price"])
	}
}

func TestSaveReplacesWholeFile(t *testing.T) {
	store := newTestStore(t)

	first := NewRecord(testNames)
	first.Current.Set(metrics.Price, decimal.NewFromInt(1))
	first.LastNotified.Set(metrics.Price, decimal.NewFromInt(1))
	if err := store.Save(first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	second := NewRecord(testNames)
	second.Current.Set(metrics.Price, decimal.NewFromInt(2))
	if err := store.Save(second); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.Current.Get(metrics.Price).Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected replaced value 2, got %s", loaded.Current.Get(metrics.Price).String())
	}
	if !loaded.LastNotified.Get(metrics.Price).IsZero() {
		t.Fatal("replace-on-write must not merge previous last_notification values")
	}

	entries, err := os.ReadDir(filepath.Dir(store.path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files must not be left behind, found %d entries", len(entries))
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := store.Load(); err == nil {
		t.Fatal("corrupt baseline file must return an error")
	}
}

func TestLoadAcceptsNullLastUpdate(t *testing.T) {
	store := newTestStore(t)
	doc := `{"price": 3, "market_cap": 9, "last_notification_price": 0, "last_notification_market_cap": 0, "last_update": null}`
	if err := os.WriteFile(store.path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.LastUpdate != nil {
		t.Fatal("null last_update must load as nil")
	}
	if !rec.Current.Get(metrics.Price).Equal(decimal.NewFromInt(3)) {
		t.Fatalf("price mismatch: %s", rec.Current.Get(metrics.Price).String())
	}
}
