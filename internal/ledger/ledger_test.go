package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/remote"
	"github.com/mtlprog/vault/internal/vaulterr"
)

func TestMemoryTransfers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("vault")
	m.Mint("alice", "ckBTC", decimal.NewFromInt(1000))

	if _, err := m.TransferFrom(ctx, "alice", "ckBTC", decimal.NewFromInt(1500)); vaulterr.KindOf(err) != vaulterr.BusinessLogic {
		t.Errorf("overdraft kind = %s, want BusinessLogic", vaulterr.KindOf(err))
	}

	tx1, err := m.TransferFrom(ctx, "alice", "ckBTC", decimal.NewFromInt(600))
	if err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	tx2, _ := m.Transfer(ctx, "alice", "ckBTC", decimal.NewFromInt(100))
	if tx2 <= tx1 {
		t.Errorf("tx ids not increasing: %d then %d", tx1, tx2)
	}

	alice, _ := m.BalanceOf(ctx, "alice", "ckBTC")
	vault, _ := m.BalanceOf(ctx, "vault", "ckBTC")
	if !alice.Equal(decimal.NewFromInt(500)) {
		t.Errorf("alice = %s, want 500", alice)
	}
	if !vault.Equal(decimal.NewFromInt(500)) {
		t.Errorf("vault = %s, want 500", vault)
	}
}

func TestClientTransferFrom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfer_from" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Vault-Account") != "vault" {
			t.Errorf("missing vault header")
		}
		var req transferRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.From != "alice" || req.To != "vault" || !req.Amount.Equal(decimal.NewFromInt(250)) {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"txId":99}`))
	}))
	defer server.Close()

	c := NewClient(remote.NewClient(server.URL, 0, time.Millisecond), "vault")
	tx, err := c.TransferFrom(context.Background(), "alice", "ckBTC", decimal.NewFromInt(250))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx != 99 {
		t.Errorf("tx = %d, want 99", tx)
	}
}

func TestClientBalanceOf(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("account") != "bob" || r.URL.Query().Get("token") != "ICP" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"balance":"123456789"}`))
	}))
	defer server.Close()

	c := NewClient(remote.NewClient(server.URL, 0, time.Millisecond), "vault")
	got, err := c.BalanceOf(context.Background(), "bob", "ICP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(123456789)) {
		t.Errorf("balance = %s, want 123456789", got)
	}
}
