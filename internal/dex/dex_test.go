package dex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/remote"
	"github.com/mtlprog/vault/internal/vaulterr"
)

var testPool = pool.New(pool.KongSwap, "ckBTC", "ICP")

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestSimulatedRoundTrip(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(0)

	res, err := sim.AddLiquidity(ctx, testPool, nil, d(1000), decimal.Zero)
	if err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	if !res.Amount0Used.Equal(d(500)) || !res.Amount1Used.Equal(d(500)) {
		t.Errorf("used = %s/%s, want 500/500", res.Amount0Used, res.Amount1Used)
	}

	value, _ := sim.PositionValue(ctx, testPool, res.PositionID, "ckBTC")
	if !value.Equal(d(1000)) {
		t.Errorf("PositionValue = %s, want 1000", value)
	}

	half, err := sim.WithdrawLiquidity(ctx, testPool, res.PositionID, Fraction{Shares: d(1), TotalShares: d(2)})
	if err != nil {
		t.Fatalf("WithdrawLiquidity: %v", err)
	}
	if !half.Amount0.Equal(d(250)) || !half.Amount1.Equal(d(250)) {
		t.Errorf("half = %s/%s, want 250/250", half.Amount0, half.Amount1)
	}

	rest, _ := sim.WithdrawLiquidity(ctx, testPool, res.PositionID, Full)
	if !rest.Amount0.Equal(d(250)) || !rest.Amount1.Equal(d(250)) {
		t.Errorf("rest = %s/%s, want 250/250", rest.Amount0, rest.Amount1)
	}
}

func TestSimulatedSwapFeeAndPrice(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(30)
	sim.SetPrice(testPool.ID, d(2))

	out, err := sim.Swap(ctx, testPool, "ckBTC", d(500))
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	// 500 * 2 = 1000, minus 0.3% fee.
	if !out.Equal(d(997)) {
		t.Errorf("out = %s, want 997", out)
	}

	back, _ := sim.Swap(ctx, testPool, "ICP", d(1000))
	if !back.Equal(d(499)) {
		t.Errorf("back = %s, want 499", back)
	}

	if _, err := sim.Swap(ctx, testPool, "ckETH", d(1)); vaulterr.KindOf(err) != vaulterr.Validation {
		t.Errorf("foreign token kind = %s, want Validation", vaulterr.KindOf(err))
	}
}

func TestSimulatedSlippage(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(0)
	res, _ := sim.AddLiquidity(ctx, testPool, nil, d(1000), d(1000))
	sim.SetSlippage(100)

	out, _ := sim.WithdrawLiquidity(ctx, testPool, res.PositionID, Full)
	if !out.Amount0.Equal(d(990)) || !out.Amount1.Equal(d(990)) {
		t.Errorf("out = %s/%s, want 990/990", out.Amount0, out.Amount1)
	}
}

func TestSimulatedFailNext(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(0)
	boom := errors.New("canister trapped")
	sim.FailNext(OpAdd, boom)

	if _, err := sim.AddLiquidity(ctx, testPool, nil, d(10), d(0)); !errors.Is(err, boom) {
		t.Errorf("first call err = %v, want %v", err, boom)
	}
	if _, err := sim.AddLiquidity(ctx, testPool, nil, d(10), d(0)); err != nil {
		t.Errorf("second call err = %v, want nil", err)
	}
	if sim.Calls(OpAdd) != 2 {
		t.Errorf("Calls = %d, want 2", sim.Calls(OpAdd))
	}
}

func TestSimulatedAccrue(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(0)
	res, _ := sim.AddLiquidity(ctx, testPool, nil, d(1000), d(1000))
	sim.Accrue(res.PositionID, 1000)
	value, _ := sim.PositionValue(ctx, testPool, res.PositionID, "ckBTC")
	if !value.Equal(d(2200)) {
		t.Errorf("value = %s, want 2200", value)
	}
}

func TestSimulatedExistingPosition(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(0)
	first, _ := sim.AddLiquidity(ctx, testPool, nil, d(100), d(100))
	second, err := sim.AddLiquidity(ctx, testPool, &first.PositionID, d(50), d(50))
	if err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	if second.PositionID != first.PositionID {
		t.Errorf("PositionID = %d, want %d", second.PositionID, first.PositionID)
	}

	missing := uint64(404)
	if _, err := sim.AddLiquidity(ctx, testPool, &missing, d(1), d(1)); vaulterr.KindOf(err) != vaulterr.NotFound {
		t.Errorf("missing position kind = %s, want NotFound", vaulterr.KindOf(err))
	}
}

func TestRouterDispatch(t *testing.T) {
	ctx := context.Background()
	kong := NewSimulated(0)
	router := NewRouter(map[pool.Provider]Adapter{pool.KongSwap: kong})

	if _, err := router.Swap(ctx, testPool, "ckBTC", d(10)); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if kong.Calls(OpSwap) != 1 {
		t.Errorf("kong swaps = %d, want 1", kong.Calls(OpSwap))
	}

	icp := pool.New(pool.ICPSwap, "ckBTC", "ICP")
	if _, err := router.Swap(ctx, icp, "ckBTC", d(10)); vaulterr.KindOf(err) != vaulterr.BusinessLogic {
		t.Errorf("unrouted kind = %s, want BusinessLogic", vaulterr.KindOf(err))
	}
}

func TestOtherToken(t *testing.T) {
	if got, _ := OtherToken(testPool, "ICP"); got != "ckBTC" {
		t.Errorf("OtherToken(ICP) = %s, want ckBTC", got)
	}
	if _, err := OtherToken(testPool, "ckETH"); err == nil {
		t.Error("expected error for foreign token")
	}
}

func TestClientWithdrawLiquidity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/liquidity/withdraw" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Pool       poolRef  `json:"pool"`
			PositionID uint64   `json:"positionId"`
			Fraction   Fraction `json:"fraction"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Pool.Token0 != "ckBTC" || req.PositionID != 5 || !req.Fraction.Shares.Equal(d(1)) {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"amount0":"120","amount1":"80"}`))
	}))
	defer server.Close()

	c := NewClient(remote.NewClient(server.URL, 0, time.Millisecond))
	res, err := c.WithdrawLiquidity(context.Background(), testPool, 5, Fraction{Shares: d(1), TotalShares: d(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Amount0.Equal(d(120)) || !res.Amount1.Equal(d(80)) {
		t.Errorf("result = %+v", res)
	}
}

func TestClientPropagatesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := NewClient(remote.NewClient(server.URL, 0, time.Millisecond))
	_, err := c.Swap(ctx, testPool, "ckBTC", d(1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
