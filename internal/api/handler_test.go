package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/dex"
	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/ledger"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/snapshot"
	"github.com/mtlprog/vault/internal/strategy"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// firstRanker places new money in the first candidate and never moves it.
type firstRanker struct{}

func (firstRanker) Decide(_ context.Context, in strategy.RankInput) (strategy.Decision, error) {
	if in.Current != nil || len(in.Candidates) == 0 {
		return strategy.Decision{}, nil
	}
	id := in.Candidates[0].ID
	return strategy.Decision{Move: true, Target: &id}, nil
}

type fixture struct {
	handler  *Handler
	engine   *strategy.Engine
	registry *pool.Registry
	events   *event.MemoryStore
	poolA    pool.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	poolA := pool.New(pool.KongSwap, "ckBTC", "ICP")

	registry := pool.NewRegistry(pool.NewMemoryRepository())
	events := event.NewMemoryStore()
	lg := ledger.NewMemory("vault")
	lg.Mint("alice", "ckBTC", decimal.NewFromInt(10_000))

	engine := strategy.NewEngine(strategy.NewMemoryRepository(), registry, lg, dex.NewSimulated(0), events, firstRanker{})
	registry.SetUsageChecker(engine)
	defs := []strategy.Definition{
		{ID: 1, Name: "ckBTC Growth", BaseToken: "ckBTC", Profile: "Balanced", Enabled: true, Pools: []pool.Pool{poolA}},
	}
	if err := engine.Seed(context.Background(), defs); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	snapshots := snapshot.NewService(engine, snapshot.NewMemoryRepository())
	return &fixture{
		handler:  NewHandler(engine, registry, events, snapshots),
		engine:   engine,
		registry: registry,
		events:   events,
		poolA:    poolA,
	}
}

type response[T any] struct {
	Ok  T               `json:"ok"`
	Err *vaulterr.Error `json:"err"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) response[T] {
	t.Helper()
	var resp response[T]
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return resp
}

func post(path, account, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	if account != "" {
		req.Header.Set(AccountHeader, account)
	}
	return req
}

func (f *fixture) deposit(t *testing.T, amount string) {
	t.Helper()
	req := post("/api/v1/strategies/1/deposit", "alice", `{"ledger":"ckBTC","amount":"`+amount+`"}`)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	f.handler.Deposit(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("deposit status = %d, body %s", w.Code, w.Body)
	}
}

func TestDepositSuccess(t *testing.T) {
	f := newFixture(t)

	req := post("/api/v1/strategies/1/deposit", "alice", `{"ledger":"ckBTC","amount":"1000"}`)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	f.handler.Deposit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body)
	}
	resp := decode[strategy.DepositResult](t, w)
	if resp.Err != nil {
		t.Fatalf("err = %v, want nil", resp.Err)
	}
	if !resp.Ok.Shares.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("shares = %s, want 1000", resp.Ok.Shares)
	}
	if resp.Ok.PoolID != f.poolA.ID {
		t.Errorf("pool = %s, want %s", resp.Ok.PoolID, f.poolA.ID)
	}
}

func TestDepositErrors(t *testing.T) {
	tests := []struct {
		name    string
		account string
		id      string
		body    string
		status  int
		kind    vaulterr.Kind
	}{
		{"missing caller", "", "1", `{"ledger":"ckBTC","amount":"10"}`, http.StatusForbidden, vaulterr.AccessDenied},
		{"bad id", "alice", "x", `{"ledger":"ckBTC","amount":"10"}`, http.StatusBadRequest, vaulterr.Validation},
		{"bad body", "alice", "1", `{"ledger":`, http.StatusBadRequest, vaulterr.Validation},
		{"unknown field", "alice", "1", `{"ledger":"ckBTC","amount":"10","memo":"x"}`, http.StatusBadRequest, vaulterr.Validation},
		{"unknown strategy", "alice", "9", `{"ledger":"ckBTC","amount":"10"}`, http.StatusNotFound, vaulterr.NotFound},
		{"wrong ledger", "alice", "1", `{"ledger":"ICP","amount":"10"}`, http.StatusBadRequest, vaulterr.Validation},
		{"insufficient funds", "alice", "1", `{"ledger":"ckBTC","amount":"99999"}`, http.StatusConflict, vaulterr.BusinessLogic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := post("/api/v1/strategies/"+tt.id+"/deposit", tt.account, tt.body)
			req.SetPathValue("id", tt.id)
			w := httptest.NewRecorder()
			f.handler.Deposit(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.status, w.Body)
			}
			resp := decode[json.RawMessage](t, w)
			if resp.Err == nil || resp.Err.Kind != tt.kind {
				t.Errorf("err = %v, want kind %s", resp.Err, tt.kind)
			}
			if resp.Ok != nil {
				t.Errorf("ok = %s, want absent", resp.Ok)
			}
		})
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, "1000")

	req := post("/api/v1/strategies/1/withdraw", "alice", `{"ledger":"ckBTC","percentage":300}`)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	f.handler.Withdraw(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("out of range status = %d, want 400", w.Code)
	}

	req = post("/api/v1/strategies/1/withdraw", "alice", `{"ledger":"ckBTC","percentage":100}`)
	req.SetPathValue("id", "1")
	w = httptest.NewRecorder()
	f.handler.Withdraw(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body)
	}
	resp := decode[strategy.WithdrawResult](t, w)
	if !resp.Ok.CurrentShares.IsZero() {
		t.Errorf("current shares = %s, want 0", resp.Ok.CurrentShares)
	}
	if !resp.Ok.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("amount = %s, want 1000", resp.Ok.Amount)
	}
}

func TestUserStrategies(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, "500")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/strategies", nil)
	req.SetPathValue("account", "alice")
	w := httptest.NewRecorder()
	f.handler.UserStrategies(w, req)

	resp := decode[[]strategy.UserPosition](t, w)
	if len(resp.Ok) != 1 {
		t.Fatalf("positions = %d, want 1", len(resp.Ok))
	}
	if !resp.Ok[0].UserShares.Equal(decimal.NewFromInt(500)) {
		t.Errorf("user shares = %s, want 500", resp.Ok[0].UserShares)
	}
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, "100")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?page=0&pageSize=2&sort=desc", nil)
	w := httptest.NewRecorder()
	f.handler.ListEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body)
	}
	resp := decode[event.Page](t, w)
	if len(resp.Ok.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(resp.Ok.Items))
	}
	if resp.Ok.Items[0].Kind() != event.StrategyDepositCompleted {
		t.Errorf("newest kind = %s, want %s", resp.Ok.Items[0].Kind(), event.StrategyDepositCompleted)
	}
	if resp.Ok.Total <= 2 {
		t.Errorf("total = %d, want more than one page", resp.Ok.Total)
	}
}

func TestListEventsInvalidQuery(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"page=-1", "pageSize=abc", "sort=sideways"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?"+q, nil)
		w := httptest.NewRecorder()
		f.handler.ListEvents(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestExportEvents(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, "100")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/export.xlsx", nil)
	w := httptest.NewRecorder()
	f.handler.ExportEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip archive")
	}
}

func TestPools(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, "100")

	req := post("/api/v1/pools", "", `{"token0":"ckBTC","token1":"ckETH","provider":"ICPSwap"}`)
	w := httptest.NewRecorder()
	f.handler.AddPool(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", w.Code, w.Body)
	}
	added := decode[map[string]pool.ID](t, w).Ok["id"]

	req = post("/api/v1/pools", "", `{"token0":"ckBTC","token1":"ckETH","provider":"Uniswap"}`)
	w = httptest.NewRecorder()
	f.handler.AddPool(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown provider status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/pools/"+string(f.poolA.ID), nil)
	req.SetPathValue("id", string(f.poolA.ID))
	w = httptest.NewRecorder()
	f.handler.DeletePool(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("delete in-use status = %d, want 409", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/pools/"+string(added), nil)
	req.SetPathValue("id", string(added))
	w = httptest.NewRecorder()
	f.handler.DeletePool(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d, want 200, body %s", w.Code, w.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/pools/"+string(added), nil)
	req.SetPathValue("id", string(added))
	w = httptest.NewRecorder()
	f.handler.GetPool(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", w.Code)
	}
}

func TestSnapshots(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies/1/snapshots/latest", nil)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	f.handler.GetLatestSnapshot(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("latest without snapshots status = %d, want 404", w.Code)
	}

	f.deposit(t, "100")
	req = post("/api/v1/snapshots/generate", "", "")
	w = httptest.NewRecorder()
	f.handler.GenerateSnapshots(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", w.Code, w.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/strategies/1/snapshots?limit=1000", nil)
	req.SetPathValue("id", "1")
	w = httptest.NewRecorder()
	f.handler.ListSnapshots(w, req)
	resp := decode[[]snapshot.Snapshot](t, w)
	if len(resp.Ok) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(resp.Ok))
	}
	var data snapshot.Data
	if err := json.Unmarshal(resp.Ok[0].Data, &data); err != nil {
		t.Fatalf("decoding snapshot data: %v", err)
	}
	if !data.TotalBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("total balance = %s, want 100", data.TotalBalance)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/strategies/1/snapshots/2025-13-01", nil)
	req.SetPathValue("id", "1")
	req.SetPathValue("date", "2025-13-01")
	w = httptest.NewRecorder()
	f.handler.GetSnapshotByDate(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", w.Code)
	}
}

func TestAdminStrategyRoutes(t *testing.T) {
	f := newFixture(t)

	req := post("/api/v1/strategies/1/enabled", "", `{"enabled":false}`)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	f.handler.SetEnabled(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("enabled status = %d, body %s", w.Code, w.Body)
	}

	v, err := f.engine.Strategy(context.Background(), 1)
	if err != nil {
		t.Fatalf("Strategy: %v", err)
	}
	if v.Enabled {
		t.Error("strategy still enabled")
	}

	req = post("/api/v1/strategies/1/rebalance", "", "")
	req.SetPathValue("id", "1")
	w = httptest.NewRecorder()
	f.handler.Rebalance(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("rebalance without caller status = %d, want 403", w.Code)
	}
}

func TestUserPayoutsEmpty(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/payouts", nil)
	req.SetPathValue("account", string(domain.Account("alice")))
	w := httptest.NewRecorder()
	f.handler.UserPayouts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want ok envelope", w.Body)
	}
}
