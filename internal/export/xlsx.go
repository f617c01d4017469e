package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/vault/internal/event"
)

const eventsSheet = "Events"

var eventColumns = []any{"ID", "Timestamp", "Kind", "Correlation ID", "Actor", "Strategy", "Payload"}

// WriteEventsXLSX writes records as a single-sheet workbook.
func WriteEventsXLSX(w io.Writer, records []event.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", eventsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetSheetRow(eventsSheet, "A1", &eventColumns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9EAD3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(eventsSheet, "A1", "G1", header); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range records {
		row, err := eventRow(r)
		if err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(eventsSheet, cell, &row); err != nil {
			return fmt.Errorf("writing event %d: %w", r.ID, err)
		}
	}

	if err := f.SetPanes(eventsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header: %w", err)
	}
	if err := f.SetColWidth(eventsSheet, "B", "D", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(eventsSheet, "G", "G", 80); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func eventRow(r event.Record) ([]any, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding event %d payload: %w", r.ID, err)
	}
	var strategyID any
	if r.StrategyID != nil {
		strategyID = int(*r.StrategyID)
	}
	return []any{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339),
		string(r.Kind()),
		r.CorrelationID,
		r.Actor,
		strategyID,
		string(payload),
	}, nil
}
