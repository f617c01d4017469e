package worker

import (
	"context"
	"log/slog"
	"time"
)

// MetricsFetcher fetches and stores pool metrics.
type MetricsFetcher interface {
	FetchAndStore(ctx context.Context) error
}

// MetricsWorker periodically refreshes pool metrics used by the rebalance policy.
type MetricsWorker struct {
	fetcher  MetricsFetcher
	interval time.Duration
}

// NewMetricsWorker creates a new MetricsWorker.
func NewMetricsWorker(fetcher MetricsFetcher, interval time.Duration) *MetricsWorker {
	return &MetricsWorker{
		fetcher:  fetcher,
		interval: interval,
	}
}

// Run starts the metrics worker loop. It blocks until the context is cancelled.
func (w *MetricsWorker) Run(ctx context.Context) {
	slog.Info("MetricsWorker: starting")

	// Fetch immediately on startup
	if err := w.fetcher.FetchAndStore(ctx); err != nil {
		slog.Error("MetricsWorker: initial fetch failed", "error", err)
	} else {
		slog.Info("MetricsWorker: initial fetch completed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("MetricsWorker: shutting down")
			return
		case <-ticker.C:
			if err := w.fetcher.FetchAndStore(ctx); err != nil {
				slog.Error("MetricsWorker: fetch failed", "error", err)
			} else {
				slog.Debug("MetricsWorker: fetch completed")
			}
		}
	}
}
