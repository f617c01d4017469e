package strategy

import (
	"strings"
	"testing"

	"github.com/mtlprog/vault/internal/pool"
)

func TestCatalogIsValid(t *testing.T) {
	defs, err := Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(defs) == 0 {
		t.Fatal("catalog is empty")
	}
	for _, def := range defs {
		for _, p := range def.Pools {
			if p.ID != pool.NewID(p.Provider, p.Token0, p.Token1) {
				t.Errorf("strategy %d pool ID = %s, want derived", def.ID, p.ID)
			}
		}
		s := def.strategy()
		if s.Saga.State != Stable || s.UserShares == nil {
			t.Errorf("strategy %d not initialised: %+v", def.ID, s.Saga)
		}
	}
}

func TestParseCatalogRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"duplicate id", `[{"id":1,"baseToken":"A","pools":[{"provider":"KongSwap","token0":"A","token1":"B"}]},{"id":1,"baseToken":"A","pools":[{"provider":"KongSwap","token0":"A","token1":"B"}]}]`, "duplicate"},
		{"no pools", `[{"id":1,"baseToken":"A","pools":[]}]`, "no pools"},
		{"unknown provider", `[{"id":1,"baseToken":"A","pools":[{"provider":"Uniswap","token0":"A","token1":"B"}]}]`, "provider"},
		{"base not traded", `[{"id":1,"baseToken":"C","pools":[{"provider":"KongSwap","token0":"A","token1":"B"}]}]`, "base token"},
		{"malformed", `{`, "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.json))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
