package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
)

// SharesToMint returns the shares a deposit of amount buys. The first deposit
// sets a 1:1 rate; later deposits get floor(amount * totalShares / totalBalance).
// A strategy with shares but no balance mints nothing.
func SharesToMint(amount, totalShares, totalBalance decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return amount
	}
	return domain.MulDivFloor(amount, totalShares, totalBalance)
}

// SharesToBurn returns floor(shares * percentage / 100).
func SharesToBurn(shares decimal.Decimal, percentage uint8) decimal.Decimal {
	return domain.PercentOf(shares, percentage)
}

func (s *Strategy) applyDeposit(account domain.Account, amount, minted decimal.Decimal) {
	s.UserShares[account] = s.UserShares[account].Add(minted)
	s.InitialDeposit[account] = s.InitialDeposit[account].Add(amount)
	s.TotalShares = s.TotalShares.Add(minted)
	s.TotalBalance = s.TotalBalance.Add(amount)
	s.CurrentLiquidity = s.CurrentLiquidity.Add(amount)
}

// applyWithdraw burns shares of account and releases the matching slice of the
// cached balance. It returns the account's remaining shares.
func (s *Strategy) applyWithdraw(account domain.Account, burned decimal.Decimal) decimal.Decimal {
	prev := s.UserShares[account]
	remaining := prev.Sub(burned)

	released := s.TotalBalance
	if burned.LessThan(s.TotalShares) {
		released = domain.MulDivFloor(s.TotalBalance, burned, s.TotalShares)
	}
	s.TotalBalance = s.TotalBalance.Sub(released)
	s.TotalShares = s.TotalShares.Sub(burned)
	s.CurrentLiquidity = decimal.Max(decimal.Zero, s.CurrentLiquidity.Sub(released))

	if remaining.IsZero() {
		delete(s.UserShares, account)
		delete(s.InitialDeposit, account)
	} else {
		s.UserShares[account] = remaining
		s.InitialDeposit[account] = domain.MulDivFloor(s.InitialDeposit[account], remaining, prev)
	}

	if s.TotalShares.IsZero() {
		s.TotalBalance = decimal.Zero
		s.CurrentLiquidity = decimal.Zero
		s.LiquidityUpdatedAt = nil
		s.PositionID = nil
	}
	return remaining
}
