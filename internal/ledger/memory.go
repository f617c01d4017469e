package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/vaulterr"
)

// Memory is a sandbox ledger. User balances are checked; the holding account
// may go negative because the sandbox does not model funds parked in pools.
type Memory struct {
	mu       sync.Mutex
	vault    domain.Account
	balances map[string]map[domain.Account]decimal.Decimal
	nextTx   uint64
}

// NewMemory creates an empty sandbox ledger.
func NewMemory(vault domain.Account) *Memory {
	return &Memory{vault: vault, balances: make(map[string]map[domain.Account]decimal.Decimal)}
}

// Mint credits account with amount of token.
func (m *Memory) Mint(account domain.Account, token string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(account, token, amount)
}

func (m *Memory) TransferFrom(_ context.Context, owner domain.Account, token string, amount decimal.Decimal) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance(owner, token).LessThan(amount) {
		return 0, vaulterr.NewBusinessLogic(vaulterr.ModuleLedger, 1, "insufficient funds",
			"account", owner.String(), "token", token, "amount", amount.String())
	}
	m.credit(owner, token, amount.Neg())
	m.credit(m.vault, token, amount)
	return m.tx(), nil
}

func (m *Memory) Transfer(_ context.Context, to domain.Account, token string, amount decimal.Decimal) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(m.vault, token, amount.Neg())
	m.credit(to, token, amount)
	return m.tx(), nil
}

func (m *Memory) BalanceOf(_ context.Context, account domain.Account, token string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(account, token), nil
}

func (m *Memory) balance(account domain.Account, token string) decimal.Decimal {
	return m.balances[token][account]
}

func (m *Memory) credit(account domain.Account, token string, amount decimal.Decimal) {
	if m.balances[token] == nil {
		m.balances[token] = make(map[domain.Account]decimal.Decimal)
	}
	m.balances[token][account] = m.balances[token][account].Add(amount)
}

func (m *Memory) tx() uint64 {
	m.nextTx++
	return m.nextTx
}
