// Package export publishes strategy snapshots and the event log to
// spreadsheets.
package export

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/snapshot"
	"github.com/mtlprog/vault/internal/strategy"
)

// changePeriods are the look-backs, in days, of the share price change columns.
var changePeriods = []int{7, 30, 90, 365}

// Row is a strategy snapshot with historical share price changes.
type Row struct {
	snapshot.Data
	WeekChange    *decimal.Decimal
	MonthChange   *decimal.Decimal
	QuarterChange *decimal.Decimal
	YearChange    *decimal.Decimal
}

// SheetWriter writes strategy rows to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, rows []Row) error
	AppendMonitoring(ctx context.Context, rows []Row) error
}

// Service builds export rows and delegates writing to a SheetWriter.
type Service struct {
	snapshots snapshot.Repository
	writer    SheetWriter
	now       func() time.Time
}

// NewService creates a new export Service.
func NewService(snapshots snapshot.Repository, writer SheetWriter) *Service {
	return &Service{
		snapshots: snapshots,
		writer:    writer,
		now:       time.Now,
	}
}

// Export rewrites the strategies sheet and appends today's monitoring rows.
// Implements worker.AfterSnapshotHook.
func (s *Service) Export(ctx context.Context, data []snapshot.Data) error {
	now := s.now().UTC()
	rows := make([]Row, 0, len(data))
	for _, d := range data {
		hist := s.fetchHistorical(ctx, d.StrategyID, now)
		rows = append(rows, Row{
			Data:          d,
			WeekChange:    computeChange(d.SharePrice, hist[7]),
			MonthChange:   computeChange(d.SharePrice, hist[30]),
			QuarterChange: computeChange(d.SharePrice, hist[90]),
			YearChange:    computeChange(d.SharePrice, hist[365]),
		})
	}

	if err := s.writer.Write(ctx, rows); err != nil {
		return err
	}
	return s.writer.AppendMonitoring(ctx, rows)
}

// fetchHistorical returns the share price of a strategy for each change period.
func (s *Service) fetchHistorical(ctx context.Context, id strategy.ID, now time.Time) map[int]*decimal.Decimal {
	result := make(map[int]*decimal.Decimal, len(changePeriods))

	for _, days := range changePeriods {
		snap, err := s.snapshots.GetNearestBefore(ctx, id, now.AddDate(0, 0, -days))
		if err != nil {
			slog.Debug("export: historical snapshot unavailable", "strategy_id", id, "days", days, "error", err)
			continue
		}

		var hist snapshot.Data
		if err := json.Unmarshal(snap.Data, &hist); err != nil {
			slog.Warn("export: failed to unmarshal historical snapshot", "strategy_id", id, "days", days, "error", err)
			continue
		}
		result[days] = &hist.SharePrice
	}

	return result
}

// computeChange returns (current - historical) / historical, or nil if unavailable.
func computeChange(current decimal.Decimal, hist *decimal.Decimal) *decimal.Decimal {
	if hist == nil || hist.IsZero() {
		return nil
	}
	pct := current.Sub(*hist).Div(*hist)
	return &pct
}
