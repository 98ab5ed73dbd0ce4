package fetcher

import (
	"context"

	"github.com/easygo-dev/token/internal/metrics"
)

// MetricsFetcher produces the current values of the tracked metrics, or fails
// with a transient error. The monitor treats every implementation the same.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context) (metrics.TokenData, error)
}

// Closer is implemented by fetchers that hold a long-lived external resource
// (a browser session, an RPC connection) needing release on shutdown.
type Closer interface {
	Close()
}

// Resetter is implemented by fetchers whose external resource should be torn
// down and lazily recreated after a failed fetch.
type Resetter interface {
	Reset()
}
