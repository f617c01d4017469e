package export

import (
	"context"
	"fmt"
	"time"

	sheets "google.golang.org/api/sheets/v4"
)

var monitoringHeaders = []any{
	"Date", "Strategy", "Pool", "Total Balance", "Shares", "Share Price", "APY", "Users",
}

// buildMonitoringRows builds the header row and one data row per strategy.
func buildMonitoringRows(rows []Row, at time.Time) (header []any, data [][]any) {
	date := at.UTC().Format("02.01.2006")
	data = make([][]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, []any{
			date,
			row.Name,
			poolCell(row),
			toFloat(row.TotalBalance),
			toFloat(row.TotalShares),
			toFloat(row.SharePrice),
			row.APY,
			row.UsersCount,
		})
	}
	return monitoringHeaders, data
}

// AppendMonitoring ensures the MONITORING sheet exists, writes the header row
// if the sheet is empty, then appends one row per strategy for this run.
func (w *SheetsWriter) AppendMonitoring(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	meta, err := w.ensureSheets(ctx, monitoringSheet)
	if err != nil {
		return fmt.Errorf("ensuring MONITORING sheet: %w", err)
	}

	header, data := buildMonitoringRows(rows, time.Now())

	existing, err := w.svc.Spreadsheets.Values.Get(
		w.spreadsheetID, monitoringSheet+"!A1:A1",
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading MONITORING headers: %w", err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			monitoringSheet+"!A1",
			&sheets.ValueRange{Values: [][]any{header}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing MONITORING headers: %w", err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		monitoringSheet+"!A:H",
		&sheets.ValueRange{Values: data},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending MONITORING rows: %w", err)
	}

	if err := w.applyMonitoringFormatting(ctx, meta[monitoringSheet]); err != nil {
		return fmt.Errorf("formatting MONITORING sheet: %w", err)
	}

	return nil
}

// applyMonitoringFormatting gives the header a light-green background, freezes
// it with the date column, and formats dates and balances.
func (w *SheetsWriter) applyMonitoringFormatting(ctx context.Context, mon sheetMeta) error {
	lightGreen := &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827}
	totalCols := int64(len(monitoringHeaders))

	var reqs []*sheets.Request

	reqs = append(reqs, cellFormatReq(mon.id, 0, 1, 0, totalCols,
		&sheets.CellFormat{
			BackgroundColor:     lightGreen,
			TextFormat:          &sheets.TextFormat{Bold: true, FontSize: 10},
			HorizontalAlignment: "CENTER",
			VerticalAlignment:   "MIDDLE",
		},
		"userEnteredFormat(backgroundColor,textFormat,horizontalAlignment,verticalAlignment)"))

	reqs = append(reqs, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId: mon.id,
				GridProperties: &sheets.GridProperties{
					FrozenRowCount:    1,
					FrozenColumnCount: 1,
				},
			},
			Fields: "gridProperties.frozenRowCount,gridProperties.frozenColumnCount",
		},
	})

	reqs = append(reqs, cellFormatReq(mon.id, 1, 10000, 0, 1,
		&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "DATE", Pattern: "d.m.yyyy"}},
		"userEnteredFormat.numberFormat"))

	// Total Balance and Shares are integer token units.
	reqs = append(reqs, cellFormatReq(mon.id, 1, 10000, 3, 5,
		&sheets.CellFormat{NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: "#,##0"}},
		"userEnteredFormat.numberFormat"))

	for _, bid := range mon.bandingIDs {
		reqs = append(reqs, &sheets.Request{
			DeleteBanding: &sheets.DeleteBandingRequest{BandedRangeId: bid},
		})
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}

func cellFormatReq(sheetID, startRow, endRow, startCol, endCol int64, format *sheets.CellFormat, fields string) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    startRow,
				EndRowIndex:      endRow,
				StartColumnIndex: startCol,
				EndColumnIndex:   endCol,
			},
			Cell:   &sheets.CellData{UserEnteredFormat: format},
			Fields: fields,
		},
	}
}
