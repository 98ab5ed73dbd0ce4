package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/easygo-dev/token/internal/metrics"
)

// BrowserOptions parameterise the headless-browser fetcher.
type BrowserOptions struct {
	PageURL         string
	WaitSelector    string
	NavigateTimeout time.Duration
	UserDataDir     string
}

// Browser fetches token data by rendering the token page in headless Chrome,
// which gets past bot protection the plain HTTP client cannot. The Chrome
// session is created lazily and kept across cycles; after a failed fetch it is
// torn down and recreated on the next call, since a wedged renderer tends to
// fail every subsequent navigation.
type Browser struct {
	opts   BrowserOptions
	logger zerolog.Logger

	mu          sync.Mutex
	browserCtx  context.Context
	cancelChain []context.CancelFunc
}

// NewBrowser constructs a browser fetcher. No Chrome process is started until
// the first fetch.
func NewBrowser(opts BrowserOptions, logger zerolog.Logger) *Browser {
	return &Browser{
		opts:   opts,
		logger: logger.With().Str("component", "browser_fetcher").Logger(),
	}
}

// FetchMetrics renders the token page and extracts price and market cap.
func (b *Browser) FetchMetrics(ctx context.Context) (metrics.TokenData, error) {
	if b.opts.PageURL == "" {
		return metrics.TokenData{}, errors.New("browser page url not configured")
	}

	browserCtx, err := b.session()
	if err != nil {
		return metrics.TokenData{}, err
	}

	timeout := b.opts.NavigateTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	runCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	waitSelector := b.opts.WaitSelector
	if waitSelector == "" {
		waitSelector = `[data-testid="token-price"]`
	}

	var resultJSON string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(b.opts.PageURL),
		chromedp.WaitVisible(waitSelector, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(extractTokenJS, &resultJSON),
	)
	if err != nil {
		// ctx cancellation means process shutdown, not a page failure.
		if ctx.Err() != nil {
			return metrics.TokenData{}, ctx.Err()
		}
		return metrics.TokenData{}, fmt.Errorf("render token page: %w", err)
	}

	var extracted struct {
		Name      string          `json:"name"`
		Symbol    string          `json:"symbol"`
		Price     decimal.Decimal `json:"price"`
		MarketCap decimal.Decimal `json:"marketCap"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &extracted); err != nil {
		return metrics.TokenData{}, fmt.Errorf("parse extracted token data: %w", err)
	}

	if extracted.Price.IsZero() {
		return metrics.TokenData{}, errors.New("page yielded no price")
	}

	values := metrics.NewSet(metrics.Price, metrics.MarketCap)
	values.Set(metrics.Price, extracted.Price)
	values.Set(metrics.MarketCap, extracted.MarketCap)

	return metrics.TokenData{
		Name:   extracted.Name,
		Symbol: extracted.Symbol,
		Values: values,
	}, nil
}

// Reset tears down the Chrome session; the next fetch starts a fresh one.
func (b *Browser) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

// Close releases the Chrome session on shutdown.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

func (b *Browser) session() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		return b.browserCtx, nil
	}

	userDataDir := b.opts.UserDataDir
	if userDataDir == "" {
		userDataDir = "/tmp/tokenmon-profile"
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-crash-reporter", true),
		chromedp.Flag("crash-dumps-dir", "/tmp"),
		chromedp.UserDataDir(userDataDir),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	b.browserCtx = browserCtx
	b.cancelChain = []context.CancelFunc{browserCancel, allocCancel}
	b.logger.Info().Msg("started headless browser session")

	return browserCtx, nil
}

func (b *Browser) teardownLocked() {
	if b.browserCtx == nil {
		return
	}
	for _, cancel := range b.cancelChain {
		cancel()
	}
	b.browserCtx = nil
	b.cancelChain = nil
	b.logger.Info().Msg("released headless browser session")
}

// extractTokenJS runs in the rendered page and pulls the token header figures.
const extractTokenJS = `
(() => {
	const text = sel => {
		const el = document.querySelector(sel);
		return el ? el.textContent : '';
	};
	const parseNum = s => {
		s = (s || '').replace(/[$,\s]/g, '');
		let mult = 1;
		if (/[kK]$/.test(s)) { mult = 1e3; s = s.slice(0, -1); }
		if (/[mM]$/.test(s)) { mult = 1e6; s = s.slice(0, -1); }
		if (/[bB]$/.test(s)) { mult = 1e9; s = s.slice(0, -1); }
		const n = parseFloat(s);
		return isNaN(n) ? 0 : n * mult;
	};
	return JSON.stringify({
		name: (text('[data-testid="token-name"]') || document.title.split('|')[0]).trim(),
		symbol: text('[data-testid="token-symbol"]').trim(),
		price: parseNum(text('[data-testid="token-price"]')),
		marketCap: parseNum(text('[data-testid="token-market-cap"]')),
	});
})()
`

var _ MetricsFetcher = (*Browser)(nil)
var _ Closer = (*Browser)(nil)
var _ Resetter = (*Browser)(nil)
