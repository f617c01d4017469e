package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mtlprog/vault/internal/vaulterr"
)

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer secret-key", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong-key", http.StatusUnauthorized},
		{"basic scheme", "Basic secret-key", http.StatusUnauthorized},
		{"bare token", "secret-key", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				writeOK(w, "done")
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/pools", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			requireAuth("secret-key", next).ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("next called = %v", called)
			}
			resp := decode[string](t, w)
			if tt.want == http.StatusOK {
				if resp.Err != nil || resp.Ok != "done" {
					t.Errorf("response = %+v, want ok", resp)
				}
				return
			}
			if resp.Err == nil || resp.Err.Kind != vaulterr.AccessDenied {
				t.Errorf("err = %v, want AccessDenied", resp.Err)
			}
		})
	}
}

func TestMuxProtectsAdminRoutes(t *testing.T) {
	f := newFixture(t)
	mux := NewMux(f.handler, "secret-key")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/strategies/1/rebalance", nil)
	req.Header.Set(AccountHeader, "admin")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("public route status = %d, want 200", w.Code)
	}
}

func TestMuxOpenAdminRoutesWithoutKey(t *testing.T) {
	f := newFixture(t)
	mux := NewMux(f.handler, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/strategies/1/reset", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body %s", w.Code, w.Body)
	}
}
