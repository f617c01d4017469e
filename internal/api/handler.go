// Package api exposes the vault over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/snapshot"
	"github.com/mtlprog/vault/internal/strategy"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// AccountHeader carries the caller identity set by the upstream identity layer.
const AccountHeader = "X-Account"

// Strategies is the strategy engine surface served over HTTP.
type Strategies interface {
	Deposit(ctx context.Context, req strategy.DepositRequest) (strategy.DepositResult, error)
	Withdraw(ctx context.Context, req strategy.WithdrawRequest) (strategy.WithdrawResult, error)
	Rebalance(ctx context.Context, id strategy.ID, actor domain.Account) (strategy.RebalanceResult, error)
	Strategies(ctx context.Context) ([]strategy.View, error)
	Strategy(ctx context.Context, id strategy.ID) (strategy.View, error)
	UserStrategies(ctx context.Context, account domain.Account) ([]strategy.UserPosition, error)
	PendingPayouts(ctx context.Context, account domain.Account) ([]strategy.Payout, error)
	Reset(ctx context.Context, id strategy.ID) error
	SetEnabled(ctx context.Context, id strategy.ID, enabled bool) error
}

// Pools is the pool registry surface served over HTTP.
type Pools interface {
	Add(ctx context.Context, token0, token1 string, provider pool.Provider) (pool.ID, error)
	Delete(ctx context.Context, id pool.ID) error
	Get(ctx context.Context, id pool.ID) (pool.Pool, error)
	List(ctx context.Context) ([]pool.Pool, error)
}

// Snapshots serves stored strategy snapshots.
type Snapshots interface {
	Generate(ctx context.Context, date time.Time) ([]snapshot.Data, error)
	GetLatest(ctx context.Context, id strategy.ID) (*snapshot.Snapshot, error)
	GetByDate(ctx context.Context, id strategy.ID, date time.Time) (*snapshot.Snapshot, error)
	List(ctx context.Context, id strategy.ID, limit int) ([]snapshot.Snapshot, error)
}

// Handler provides HTTP endpoints for the vault API.
type Handler struct {
	strategies Strategies
	pools      Pools
	events     event.Store
	snapshots  Snapshots
}

// NewHandler creates a new API handler.
func NewHandler(strategies Strategies, pools Pools, events event.Store, snapshots Snapshots) *Handler {
	return &Handler{strategies: strategies, pools: pools, events: events, snapshots: snapshots}
}

const maxBodyBytes = 1 << 16

// caller reads the caller identity. A missing identity is AccessDenied.
func caller(r *http.Request) (domain.Account, error) {
	a, err := domain.ParseAccount(r.Header.Get(AccountHeader))
	if err != nil {
		return "", vaulterr.NewAccessDenied(vaulterr.ModuleAPI, 1, "caller identity required")
	}
	return a, nil
}

func strategyID(r *http.Request) (strategy.ID, error) {
	raw := r.PathValue("id")
	id, err := strategy.ParseID(raw)
	if err != nil {
		return 0, vaulterr.NewValidation(vaulterr.ModuleAPI, 1, "invalid strategy id", "id", raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return vaulterr.Wrap(vaulterr.ModuleAPI, vaulterr.Validation, 2, "invalid request body", err)
	}
	return nil
}

// limitParam reads ?limit, defaulting to 30 and capped at 365.
func limitParam(r *http.Request) int {
	const maxLimit = 365
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}
	return limit
}

// envelope is the two-variant response body: exactly one field is set.
type envelope struct {
	Ok  any             `json:"ok,omitempty"`
	Err *vaulterr.Error `json:"err,omitempty"`
}

func writeOK(w http.ResponseWriter, v any) {
	if v == nil {
		v = struct{}{}
	}
	writeJSON(w, http.StatusOK, envelope{Ok: v})
}

func writeErr(w http.ResponseWriter, err error) {
	ve := vaulterr.Response(err)
	if ve.Kind == vaulterr.Unknown {
		slog.Error("request failed", "code", ve.Code, "error", err)
	}
	writeJSON(w, ve.Kind.HTTPStatus(), envelope{Err: ve})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"err":{"kind":"Unknown","message":"internal error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

// notFoundAs maps a repository sentinel onto a NotFound response.
func notFoundAs(err error, sentinel error, msg string) error {
	if errors.Is(err, sentinel) {
		return vaulterr.NewNotFound(vaulterr.ModuleAPI, 1, msg)
	}
	return err
}
