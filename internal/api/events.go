package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/export"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// maxExportRecords bounds the workbook produced by ExportEvents.
const maxExportRecords = 50_000

func eventQuery(r *http.Request) (event.Query, error) {
	q := r.URL.Query()
	var out event.Query
	for key, dst := range map[string]*int{"page": &out.Page, "pageSize": &out.PageSize} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return event.Query{}, vaulterr.NewValidation(vaulterr.ModuleAPI, 6, "invalid "+key, key, v)
		}
		*dst = n
	}
	sort, err := event.ParseSortOrder(q.Get("sort"))
	if err != nil {
		return event.Query{}, vaulterr.Wrap(vaulterr.ModuleAPI, vaulterr.Validation, 7, "invalid sort", err)
	}
	out.Sort = sort
	out.Search = q.Get("search")
	return out, nil
}

// ListEvents handles GET /api/v1/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q, err := eventQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	page, err := h.events.List(r.Context(), q)
	if err != nil {
		writeErr(w, vaulterr.Wrap(vaulterr.ModuleEvent, vaulterr.Unknown, 2, "listing events", err))
		return
	}
	writeOK(w, page)
}

// ExportEvents handles GET /api/v1/events/export.xlsx. It honours sort and
// search but ignores paging.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	q, err := eventQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	q.PageSize = event.MaxPageSize

	var records []event.Record
	for q.Page = 0; len(records) < maxExportRecords; q.Page++ {
		page, err := h.events.List(r.Context(), q)
		if err != nil {
			writeErr(w, vaulterr.Wrap(vaulterr.ModuleEvent, vaulterr.Unknown, 3, "listing events", err))
			return
		}
		records = append(records, page.Items...)
		if len(page.Items) < q.PageSize || len(records) >= page.Total {
			break
		}
	}

	name := "events-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := export.WriteEventsXLSX(w, records); err != nil {
		// Headers are already sent; the client sees a truncated file.
		slog.Error("writing events workbook failed", "error", err)
	}
}
