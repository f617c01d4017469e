// Package ledger moves tokens between users and the vault holding account.
package ledger

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/remote"
)

// Client talks to the ledger gateway over HTTP. Transfers are made on behalf of
// the configured holding account.
type Client struct {
	remote *remote.Client
	vault  domain.Account
}

// NewClient creates a ledger client acting as vault.
func NewClient(rc *remote.Client, vault domain.Account) *Client {
	return &Client{remote: rc.WithHeader("X-Vault-Account", vault.String()), vault: vault}
}

type transferRequest struct {
	From   string          `json:"from,omitempty"`
	To     string          `json:"to"`
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	TxID uint64 `json:"txId"`
}

// TransferFrom pulls a pre-approved amount from owner into the holding account.
func (c *Client) TransferFrom(ctx context.Context, owner domain.Account, token string, amount decimal.Decimal) (uint64, error) {
	var resp transferResponse
	req := transferRequest{From: owner.String(), To: c.vault.String(), Token: token, Amount: amount}
	if err := c.remote.PostJSON(ctx, "/v1/transfer_from", req, &resp); err != nil {
		return 0, fmt.Errorf("transfer_from %s: %w", owner, err)
	}
	return resp.TxID, nil
}

// Transfer sends amount from the holding account to a user.
func (c *Client) Transfer(ctx context.Context, to domain.Account, token string, amount decimal.Decimal) (uint64, error) {
	var resp transferResponse
	req := transferRequest{To: to.String(), Token: token, Amount: amount}
	if err := c.remote.PostJSON(ctx, "/v1/transfer", req, &resp); err != nil {
		return 0, fmt.Errorf("transfer to %s: %w", to, err)
	}
	return resp.TxID, nil
}

// BalanceOf returns the token balance of account.
func (c *Client) BalanceOf(ctx context.Context, account domain.Account, token string) (decimal.Decimal, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	q := url.Values{"account": {account.String()}, "token": {token}}
	if err := c.remote.GetJSON(ctx, "/v1/balance?"+q.Encode(), &resp); err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", account, err)
	}
	return resp.Balance, nil
}
