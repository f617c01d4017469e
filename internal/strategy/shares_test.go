package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
)

func TestSharesToMint(t *testing.T) {
	tests := []struct {
		name                    string
		amount, shares, balance int64
		want                    int64
	}{
		{"first deposit", 1000, 0, 0, 1000},
		{"equal rate", 500, 1000, 1000, 500},
		{"appreciated", 500, 1000, 2000, 250},
		{"rounds down", 10, 3, 7, 4},
		{"shares without balance", 100, 1000, 0, 0},
		{"dust", 1, 100, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SharesToMint(d(tt.amount), d(tt.shares), d(tt.balance))
			if !got.Equal(d(tt.want)) {
				t.Errorf("SharesToMint(%d, %d, %d) = %s, want %d", tt.amount, tt.shares, tt.balance, got, tt.want)
			}
		})
	}
}

func TestSharesToBurn(t *testing.T) {
	tests := []struct {
		shares int64
		pct    uint8
		want   int64
	}{
		{1000, 100, 1000},
		{1000, 0, 0},
		{1000, 33, 330},
		{7, 50, 3},
		{1, 99, 0},
	}
	for _, tt := range tests {
		if got := SharesToBurn(d(tt.shares), tt.pct); !got.Equal(d(tt.want)) {
			t.Errorf("SharesToBurn(%d, %d) = %s, want %d", tt.shares, tt.pct, got, tt.want)
		}
	}
}

func newTestStrategy() *Strategy {
	s := &Strategy{ID: 1, BaseToken: "ckBTC"}
	s.resetState()
	return s
}

func TestApplyWithdrawReleasesProportionally(t *testing.T) {
	s := newTestStrategy()
	s.applyDeposit("a", d(1000), d(1000))
	s.applyDeposit("b", d(1000), d(500))

	remaining := s.applyWithdraw("b", d(250))

	if !remaining.Equal(d(250)) {
		t.Errorf("remaining = %s, want 250", remaining)
	}
	// 2000 * 250 / 1500 = 333.33 -> 333 released.
	if !s.TotalBalance.Equal(d(1667)) {
		t.Errorf("TotalBalance = %s, want 1667", s.TotalBalance)
	}
	if !s.TotalShares.Equal(d(1250)) {
		t.Errorf("TotalShares = %s, want 1250", s.TotalShares)
	}
	if !s.InitialDeposit["b"].Equal(d(500)) {
		t.Errorf("InitialDeposit[b] = %s, want 500", s.InitialDeposit["b"])
	}
}

func TestApplyWithdrawLastSharesClearsStrategy(t *testing.T) {
	s := newTestStrategy()
	s.applyDeposit("a", d(999), d(999))
	pos := uint64(7)
	s.PositionID = &pos

	s.applyWithdraw("a", d(999))

	if !s.TotalBalance.IsZero() || !s.TotalShares.IsZero() || !s.CurrentLiquidity.IsZero() {
		t.Errorf("totals = %s/%s/%s, want zero", s.TotalBalance, s.TotalShares, s.CurrentLiquidity)
	}
	if _, ok := s.UserShares[domain.Account("a")]; ok {
		t.Error("zero balance kept in UserShares")
	}
	if _, ok := s.InitialDeposit[domain.Account("a")]; ok {
		t.Error("zero balance kept in InitialDeposit")
	}
	if s.PositionID != nil {
		t.Errorf("PositionID = %d, want nil", *s.PositionID)
	}
}

func TestSharesConservedAcrossSequence(t *testing.T) {
	s := newTestStrategy()
	steps := []struct {
		account domain.Account
		deposit int64
		pct     uint8
	}{
		{"a", 1000, 0},
		{"b", 333, 0},
		{"a", 0, 40},
		{"c", 77, 0},
		{"b", 0, 100},
		{"c", 0, 50},
	}
	for _, st := range steps {
		if st.deposit > 0 {
			minted := SharesToMint(d(st.deposit), s.TotalShares, s.TotalBalance)
			s.applyDeposit(st.account, d(st.deposit), minted)
		} else {
			s.applyWithdraw(st.account, SharesToBurn(s.SharesOf(st.account), st.pct))
		}
		sum := decimal.Zero
		for _, v := range s.UserShares {
			sum = sum.Add(v)
		}
		if !sum.Equal(s.TotalShares) {
			t.Fatalf("after %+v: sum %s != total %s", st, sum, s.TotalShares)
		}
		if s.TotalBalance.IsNegative() {
			t.Fatalf("after %+v: negative balance %s", st, s.TotalBalance)
		}
	}
	if s.UsersCount() != 2 {
		t.Errorf("UsersCount = %d, want 2", s.UsersCount())
	}
}
