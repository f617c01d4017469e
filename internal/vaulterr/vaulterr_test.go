package vaulterr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCode(t *testing.T) {
	got := Code(ModuleStrategy, NotFound, 7)
	if got != 3001010107 {
		t.Errorf("Code = %d, want 3001010107", got)
	}
	if Code(ModulePool, Validation, 1) == Code(ModulePool, BusinessLogic, 1) {
		t.Error("codes for different kinds must differ")
	}
}

func TestNewDetailsOrdered(t *testing.T) {
	e := NewValidation(ModulePool, 1, "duplicate pool", "pool_id", "KongSwap_a_b", "provider", "KongSwap", "dangling")
	if len(e.Details) != 2 {
		t.Fatalf("len(Details) = %d, want 2", len(e.Details))
	}
	if e.Details[0].Key != "pool_id" || e.Details[1].Key != "provider" {
		t.Errorf("Details = %+v, want pool_id then provider", e.Details)
	}
	if v, ok := e.Detail("provider"); !ok || v != "KongSwap" {
		t.Errorf("Detail(provider) = %q, %v", v, ok)
	}
}

func TestFromAdapter(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("calling dex: %w", context.DeadlineExceeded), Timeout},
		{"plain", errors.New("connection refused"), ExternalService},
		{"classified", NewBusinessLogic(ModuleDEX, 1, "insufficient liquidity"), BusinessLogic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAdapter(ModuleStrategy, 3, "add_liquidity", tt.err)
			if got.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("wrapped error must keep its cause")
			}
			if op, _ := got.Detail("operation"); op != "add_liquidity" {
				t.Errorf("operation detail = %q, want add_liquidity", op)
			}
		})
	}

	if FromAdapter(ModuleStrategy, 1, "x", nil) != nil {
		t.Error("FromAdapter(nil) should be nil")
	}
}

func TestResponse(t *testing.T) {
	if got := Response(errors.New("boom")); got.Kind != Unknown {
		t.Errorf("Kind = %s, want Unknown", got.Kind)
	}
	nf := NewNotFound(ModuleStrategy, 1, "strategy not found")
	if got := Response(fmt.Errorf("outer: %w", nf)); got != nf {
		t.Errorf("Response should unwrap to the original error")
	}
	if Response(nil) != nil {
		t.Error("Response(nil) should be nil")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		AccessDenied:    http.StatusForbidden,
		NotFound:        http.StatusNotFound,
		Timeout:         http.StatusGatewayTimeout,
		Unknown:         http.StatusInternalServerError,
		BusinessLogic:   http.StatusConflict,
		ExternalService: http.StatusBadGateway,
		Validation:      http.StatusBadRequest,
	}
	for _, k := range Kinds {
		if got := k.HTTPStatus(); got != tests[k] {
			t.Errorf("%s.HTTPStatus() = %d, want %d", k, got, tests[k])
		}
	}
}

func TestWithCopies(t *testing.T) {
	base := NewNotFound(ModulePool, 1, "pool not found")
	derived := base.With("pool_id", "x")
	if len(base.Details) != 0 {
		t.Error("With must not mutate the receiver")
	}
	if len(derived.Details) != 1 {
		t.Errorf("len(derived.Details) = %d, want 1", len(derived.Details))
	}
}
