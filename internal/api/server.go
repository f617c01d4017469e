package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/vault/internal/vaulterr"
)

// NewServer creates an HTTP server with all routes configured. Admin routes
// require a bearer adminAPIKey; with an empty key they are left open.
func NewServer(port string, handler *Handler, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewMux(handler, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers every route on a fresh ServeMux.
func NewMux(h *Handler, adminAPIKey string) *http.ServeMux {
	admin := func(fn http.HandlerFunc) http.Handler {
		if adminAPIKey == "" {
			return fn
		}
		return requireAuth(adminAPIKey, fn)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/strategies", h.ListStrategies)
	mux.HandleFunc("GET /api/v1/strategies/{id}", h.GetStrategy)
	mux.HandleFunc("POST /api/v1/strategies/{id}/deposit", h.Deposit)
	mux.HandleFunc("POST /api/v1/strategies/{id}/withdraw", h.Withdraw)
	mux.Handle("POST /api/v1/strategies/{id}/rebalance", admin(h.Rebalance))
	mux.Handle("POST /api/v1/strategies/{id}/reset", admin(h.ResetStrategy))
	mux.Handle("POST /api/v1/strategies/{id}/enabled", admin(h.SetEnabled))

	mux.HandleFunc("GET /api/v1/strategies/{id}/snapshots", h.ListSnapshots)
	mux.HandleFunc("GET /api/v1/strategies/{id}/snapshots/latest", h.GetLatestSnapshot)
	mux.HandleFunc("GET /api/v1/strategies/{id}/snapshots/{date}", h.GetSnapshotByDate)
	mux.Handle("POST /api/v1/snapshots/generate", admin(h.GenerateSnapshots))

	mux.HandleFunc("GET /api/v1/users/{account}/strategies", h.UserStrategies)
	mux.HandleFunc("GET /api/v1/users/{account}/payouts", h.UserPayouts)

	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.Handle("GET /api/v1/events/export.xlsx", admin(h.ExportEvents))

	mux.HandleFunc("GET /api/v1/pools", h.ListPools)
	mux.HandleFunc("GET /api/v1/pools/{id}", h.GetPool)
	mux.Handle("POST /api/v1/pools", admin(h.AddPool))
	mux.Handle("DELETE /api/v1/pools/{id}", admin(h.DeletePool))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, "ok")
	})
	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, envelope{Err: vaulterr.NewAccessDenied(vaulterr.ModuleAPI, 2, "unauthorized")})
			return
		}
		next.ServeHTTP(w, r)
	})
}
