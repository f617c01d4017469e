package api

import (
	"net/http"
	"time"

	"github.com/mtlprog/vault/internal/snapshot"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// GetLatestSnapshot handles GET /api/v1/strategies/{id}/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	s, err := h.snapshots.GetLatest(r.Context(), id)
	if err != nil {
		writeErr(w, notFoundAs(err, snapshot.ErrNotFound, "no snapshots found"))
		return
	}
	writeOK(w, s)
}

// GetSnapshotByDate handles GET /api/v1/strategies/{id}/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	dateStr := r.PathValue("date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeErr(w, vaulterr.NewValidation(vaulterr.ModuleAPI, 8, "invalid date format, expected YYYY-MM-DD", "date", dateStr))
		return
	}

	s, err := h.snapshots.GetByDate(r.Context(), id, date)
	if err != nil {
		writeErr(w, notFoundAs(err, snapshot.ErrNotFound, "snapshot not found for date"))
		return
	}
	writeOK(w, s)
}

// ListSnapshots handles GET /api/v1/strategies/{id}/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := strategyID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	snapshots, err := h.snapshots.List(r.Context(), id, limitParam(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, snapshots)
}

// GenerateSnapshots handles POST /api/v1/snapshots/generate.
func (h *Handler) GenerateSnapshots(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	data, err := h.snapshots.Generate(r.Context(), time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, data)
}
