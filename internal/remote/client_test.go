package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtlprog/vault/internal/vaulterr"
)

func TestGetJSONRetryOn429(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"balance":"42"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 3, 10*time.Millisecond)
	var out struct {
		Balance string `json:"balance"`
	}
	if err := client.GetJSON(context.Background(), "/balance", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Balance != "42" {
		t.Errorf("Balance = %q, want 42", out.Balance)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestGetJSONMaxRetriesExceeded(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, 2, 10*time.Millisecond)
	var out map[string]any
	if err := client.GetJSON(context.Background(), "/x", &out); err == nil {
		t.Fatal("expected error after max retries")
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestPostJSONSendsBodyAndHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-Vault-Account"); got != "vault" {
			t.Errorf("header = %q, want vault", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"amount":"10"}` {
			t.Errorf("body = %s", body)
		}
		w.Write([]byte(`{"txId":7}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, time.Millisecond).WithHeader("X-Vault-Account", "vault")
	var out struct {
		TxID uint64 `json:"txId"`
	}
	if err := client.PostJSON(context.Background(), "/transfer", map[string]string{"amount": "10"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TxID != 7 {
		t.Errorf("TxID = %d, want 7", out.TxID)
	}
}

func TestStructuredFailureKeepsKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"err":{"code":1,"kind":"BusinessLogic","message":"insufficient allowance"}}`))
	}))
	defer server.Close()

	err := NewClient(server.URL, 0, time.Millisecond).PostJSON(context.Background(), "/transfer_from", struct{}{}, nil)
	if vaulterr.KindOf(err) != vaulterr.BusinessLogic {
		t.Errorf("kind = %s, want BusinessLogic (err=%v)", vaulterr.KindOf(err), err)
	}
}

func TestPlainFailureIsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewClient(server.URL, 0, time.Millisecond).GetJSON(context.Background(), "/x", &struct{}{})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Errorf("err = %v, want StatusError 502", err)
	}
}
