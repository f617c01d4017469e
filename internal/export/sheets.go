package export

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

const (
	strategiesSheet = "STRATEGIES"
	monitoringSheet = "MONITORING"
)

// SheetsWriter implements SheetWriter using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write ensures the strategies sheet exists, then clears and rewrites it.
func (w *SheetsWriter) Write(ctx context.Context, rows []Row) error {
	if _, err := w.ensureSheets(ctx, strategiesSheet); err != nil {
		return err
	}

	_, err := w.svc.Spreadsheets.Values.Clear(
		w.spreadsheetID,
		strategiesSheet+"!A:N",
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing sheets: %w", err)
	}

	_, err = w.svc.Spreadsheets.Values.Update(
		w.spreadsheetID,
		strategiesSheet+"!A1",
		&sheets.ValueRange{Values: buildStrategies(rows)},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing sheets: %w", err)
	}

	return nil
}

// buildStrategies builds the STRATEGIES sheet data.
// Columns: ID | Name | Base | Pool | Total Balance | Shares | Share Price | APY | Users | Saga | Week | Month | Quarter | Year
func buildStrategies(rows []Row) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{
		"ID", "Name", "Base", "Pool",
		"Total Balance", "Shares", "Share Price", "APY",
		"Users", "Saga",
		"Week", "Month", "Quarter", "Year",
	})

	for _, row := range rows {
		data = append(data, []any{
			int(row.StrategyID), row.Name, row.BaseToken, poolCell(row),
			toFloat(row.TotalBalance), toFloat(row.TotalShares), toFloat(row.SharePrice), row.APY,
			row.UsersCount, string(row.SagaState),
			ptrFloat(row.WeekChange),
			ptrFloat(row.MonthChange),
			ptrFloat(row.QuarterChange),
			ptrFloat(row.YearChange),
		})
	}

	return data
}

func poolCell(row Row) any {
	if row.CurrentPool == nil {
		return nil
	}
	return row.CurrentPool.String()
}

// sheetMeta holds the sheet id and banded ranges of an existing sheet.
type sheetMeta struct {
	id         int64
	bandingIDs []int64
}

// ensureSheets creates any of the named sheets that do not already exist and
// returns metadata for all of them.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]sheetMeta, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	meta := make(map[string]sheetMeta, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		m := sheetMeta{id: s.Properties.SheetId}
		for _, b := range s.BandedRanges {
			m.bandingIDs = append(m.bandingIDs, b.BandedRangeId)
		}
		meta[s.Properties.Title] = m
	}

	var requests []*sheets.Request
	for _, name := range names {
		if _, ok := meta[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return meta, nil
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating sheets: %w", err)
	}
	for _, r := range resp.Replies {
		if r.AddSheet != nil && r.AddSheet.Properties != nil {
			meta[r.AddSheet.Properties.Title] = sheetMeta{id: r.AddSheet.Properties.SheetId}
		}
	}

	return meta, nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return f
}
