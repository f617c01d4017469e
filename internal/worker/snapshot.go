package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/vault/internal/snapshot"
)

// SnapshotGenerator defines the interface for generating snapshots.
type SnapshotGenerator interface {
	Generate(ctx context.Context, date time.Time) ([]snapshot.Data, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	Export(ctx context.Context, data []snapshot.Data) error
}

// SnapshotWorker periodically snapshots every strategy.
type SnapshotWorker struct {
	generator SnapshotGenerator
	interval  time.Duration
	hook      AfterSnapshotHook // optional
}

// NewSnapshotWorker creates a new SnapshotWorker with an optional post-generation hook.
func NewSnapshotWorker(generator SnapshotGenerator, interval time.Duration, hook AfterSnapshotHook) *SnapshotWorker {
	return &SnapshotWorker{
		generator: generator,
		interval:  interval,
		hook:      hook,
	}
}

// runHook calls the post-generation hook if one is configured.
func (w *SnapshotWorker) runHook(ctx context.Context, data []snapshot.Data) {
	if w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx, data); err != nil {
		slog.Error("SnapshotWorker: export hook failed", "error", err)
	} else {
		slog.Info("SnapshotWorker: export hook completed")
	}
}

// utcDate returns the current date normalized to midnight UTC.
func utcDate() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (w *SnapshotWorker) generate(ctx context.Context) {
	data, err := w.generator.Generate(ctx, utcDate())
	if err != nil {
		slog.Error("SnapshotWorker: generation failed", "error", err)
		return
	}
	slog.Info("SnapshotWorker: generation completed", "strategies", len(data))
	w.runHook(ctx, data)
}

// Run starts the snapshot worker loop. It blocks until the context is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("SnapshotWorker: starting")

	// Generate immediately on startup
	w.generate(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SnapshotWorker: shutting down")
			return
		case <-ticker.C:
			w.generate(ctx)
		}
	}
}
