package evaluate

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/baseline"
	"github.com/easygo-dev/token/internal/metrics"
)

func testSpecs(priceThreshold, mcapThreshold float64) []metrics.Spec {
	return []metrics.Spec{
		{
			Name:         metrics.Price,
			Label:        "Price",
			Unit:         "$",
			Emoji:        "💰",
			ChangeLabel:  "Price Change",
			ChangeEmoji:  "📈",
			Places:       8,
			ThresholdPct: decimal.NewFromFloat(priceThreshold),
		},
		{
			Name:         metrics.MarketCap,
			Label:        "Market Cap",
			Unit:         "$",
			Emoji:        "🏦",
			ChangeLabel:  "Market Cap Change",
			ChangeEmoji:  "📊",
			Places:       2,
			ThresholdPct: decimal.NewFromFloat(mcapThreshold),
		},
	}
}

func testToken(price, mcap int64) metrics.TokenData {
	values := metrics.NewSet(metrics.Price, metrics.MarketCap)
	values.Set(metrics.Price, decimal.NewFromInt(price))
	values.Set(metrics.MarketCap, decimal.NewFromInt(mcap))
	return metrics.TokenData{Name: "Example Token", Symbol: "EXT", Values: values}
}

func TestEvaluateZeroBaselineReportsNoChange(t *testing.T) {
	rec := baseline.NewRecord([]string{metrics.Price, metrics.MarketCap})

	result := Evaluate(testToken(100, 5000), rec, testSpecs(5, 5))

	if result.ShouldNotify {
		t.Fatal("first observation must not notify")
	}
	for _, change := range result.Changes {
		if !change.PctChange.IsZero() {
			t.Fatalf("%s change should be exactly 0, got %s", change.Spec.Name, change.PctChange.String())
		}
		if change.Direction != "flat" {
			t.Fatalf("%s direction should be flat, got %s", change.Spec.Name, change.Direction)
		}
	}
}

func TestEvaluateAboveThresholdNotifies(t *testing.T) {
	rec := baseline.NewRecord([]string{metrics.Price, metrics.MarketCap})
	rec.LastNotified.Set(metrics.Price, decimal.NewFromInt(100))
	rec.LastNotified.Set(metrics.MarketCap, decimal.NewFromInt(5000))

	result := Evaluate(testToken(106, 5000), rec, testSpecs(5, 5))

	if !result.ShouldNotify {
		t.Fatal("6% move past a 5% threshold must notify")
	}

	price := result.Changes[0]
	if !price.PctChange.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected 6%% price change, got %s", price.PctChange.String())
	}
	if price.Direction != "up" {
		t.Fatalf("expected direction up, got %s", price.Direction)
	}
	if !price.Exceeded {
		t.Fatal("price change should be flagged exceeded")
	}
	if result.Changes[1].Exceeded {
		t.Fatal("unchanged market cap should not be flagged")
	}
}

func TestEvaluateBelowThresholdHolds(t *testing.T) {
	rec := baseline.NewRecord([]string{metrics.Price, metrics.MarketCap})
	rec.LastNotified.Set(metrics.Price, decimal.NewFromInt(100))
	rec.LastNotified.Set(metrics.MarketCap, decimal.NewFromInt(5000))

	result := Evaluate(testToken(106, 5000), rec, testSpecs(10, 10))

	if result.ShouldNotify {
		t.Fatal("6% move must not pass a 10% threshold")
	}
}

func TestEvaluateNegativeMoveUsesAbsoluteValue(t *testing.T) {
	rec := baseline.NewRecord([]string{metrics.Price, metrics.MarketCap})
	rec.LastNotified.Set(metrics.Price, decimal.NewFromInt(100))
	rec.LastNotified.Set(metrics.MarketCap, decimal.NewFromInt(5000))

	result := Evaluate(testToken(94, 5000), rec, testSpecs(5, 5))

	if !result.ShouldNotify {
		t.Fatal("-6% move past a 5% threshold must notify")
	}
	if result.Changes[0].Direction != "down" {
		t.Fatalf("expected direction down, got %s", result.Changes[0].Direction)
	}
}

func TestMessageListsOnlyExceededMetrics(t *testing.T) {
	rec := baseline.NewRecord([]string{metrics.Price, metrics.MarketCap})
	rec.LastNotified.Set(metrics.Price, decimal.NewFromInt(100))
	rec.LastNotified.Set(metrics.MarketCap, decimal.NewFromInt(5000))

	// Price moves 6%, market cap 1%; only price crosses its threshold.
	values := metrics.NewSet(metrics.Price, metrics.MarketCap)
	values.Set(metrics.Price, decimal.NewFromInt(106))
	values.Set(metrics.MarketCap, decimal.NewFromInt(5050))
	token := metrics.TokenData{Name: "Example Token", Symbol: "EXT", Values: values}

	result := Evaluate(token, rec, testSpecs(5, 5))

	if !result.ShouldNotify {
		t.Fatal("price move must trigger notification")
	}
	if !strings.Contains(result.Message, "<b>Example Token (EXT) Update</b>") {
		t.Fatalf("message missing header: %q", result.Message)
	}
	if !strings.Contains(result.Message, "Price: $106.00000000") {
		t.Fatalf("message missing price line: %q", result.Message)
	}
	if !strings.Contains(result.Message, "Price Change: 6.00%") {
		t.Fatalf("message missing price change line: %q", result.Message)
	}
	if strings.Contains(result.Message, "Market Cap") {
		t.Fatalf("metric below threshold must be omitted from message: %q", result.Message)
	}
}

func TestEvaluateThresholdBoundaryInclusive(t *testing.T) {
	rec := baseline.NewRecord([]string{metrics.Price, metrics.MarketCap})
	rec.LastNotified.Set(metrics.Price, decimal.NewFromInt(100))
	rec.LastNotified.Set(metrics.MarketCap, decimal.NewFromInt(5000))

	// Exactly 5% must fire (abs >= threshold).
	result := Evaluate(testToken(105, 5000), rec, testSpecs(5, 5))

	if !result.ShouldNotify {
		t.Fatal("a move equal to the threshold must notify")
	}
}
