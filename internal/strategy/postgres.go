package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/pool"
)

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL strategy repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectStrategy = `SELECT id, name, description, base_token, profile, pools, current_pool, position_id,
	total_shares, total_balance, current_liquidity, liquidity_updated_at, enabled, saga, last_rebalance_at
	FROM strategies`

func scanStrategy(row pgx.Row) (*Strategy, error) {
	var (
		s           Strategy
		id          int32
		pools       []string
		currentPool *string
		positionID  *int64
		saga        []byte
	)
	err := row.Scan(&id, &s.Name, &s.Description, &s.BaseToken, &s.Profile, &pools, &currentPool, &positionID,
		&s.TotalShares, &s.TotalBalance, &s.CurrentLiquidity, &s.LiquidityUpdatedAt, &s.Enabled, &saga, &s.LastRebalanceAt)
	if err != nil {
		return nil, err
	}
	s.ID = ID(id)
	s.Pools = lo.Map(pools, func(p string, _ int) pool.ID { return pool.ID(p) })
	if currentPool != nil {
		s.CurrentPool = lo.ToPtr(pool.ID(*currentPool))
	}
	if positionID != nil {
		s.PositionID = lo.ToPtr(uint64(*positionID))
	}
	if err := json.Unmarshal(saga, &s.Saga); err != nil {
		return nil, fmt.Errorf("decoding saga of strategy %d: %w", id, err)
	}
	s.UserShares = make(map[domain.Account]decimal.Decimal)
	s.InitialDeposit = make(map[domain.Account]decimal.Decimal)
	return &s, nil
}

func (r *PgRepository) Get(ctx context.Context, id ID) (*Strategy, error) {
	s, err := scanStrategy(r.pool.QueryRow(ctx, selectStrategy+` WHERE id = $1`, int32(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting strategy %d: %w", id, err)
	}
	if err := r.loadChildren(ctx, []*Strategy{s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PgRepository) List(ctx context.Context) ([]*Strategy, error) {
	rows, err := r.pool.Query(ctx, selectStrategy+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	defer rows.Close()

	var out []*Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning strategy: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating strategies: %w", err)
	}
	rows.Close()

	if err := r.loadChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadChildren fills user balances and pending payouts.
func (r *PgRepository) loadChildren(ctx context.Context, list []*Strategy) error {
	if len(list) == 0 {
		return nil
	}
	byID := lo.KeyBy(list, func(s *Strategy) ID { return s.ID })
	ids := lo.Map(list, func(s *Strategy, _ int) int32 { return int32(s.ID) })

	rows, err := r.pool.Query(ctx,
		`SELECT strategy_id, account, shares, initial_deposit
		 FROM strategy_positions WHERE strategy_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("loading strategy positions: %w", err)
	}
	for rows.Next() {
		var (
			sid     int32
			account string
			shares  decimal.Decimal
			initial decimal.Decimal
		)
		if err := rows.Scan(&sid, &account, &shares, &initial); err != nil {
			rows.Close()
			return fmt.Errorf("scanning strategy position: %w", err)
		}
		s := byID[ID(sid)]
		s.UserShares[domain.Account(account)] = shares
		s.InitialDeposit[domain.Account(account)] = initial
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating strategy positions: %w", err)
	}

	rows, err = r.pool.Query(ctx,
		`SELECT strategy_id, account, token, amount, reason, created_at, settling
		 FROM strategy_payouts WHERE strategy_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("loading pending payouts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sid     int32
			account string
			p       Payout
		)
		if err := rows.Scan(&sid, &account, &p.Token, &p.Amount, &p.Reason, &p.CreatedAt, &p.Settling); err != nil {
			return fmt.Errorf("scanning pending payout: %w", err)
		}
		p.Account = domain.Account(account)
		s := byID[ID(sid)]
		s.PendingPayouts = append(s.PendingPayouts, p)
	}
	return rows.Err()
}

func (r *PgRepository) Save(ctx context.Context, s *Strategy) error {
	saga, err := json.Marshal(s.Saga)
	if err != nil {
		return fmt.Errorf("encoding saga: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE strategies SET current_pool = $2, position_id = $3, total_shares = $4, total_balance = $5,
				current_liquidity = $6, liquidity_updated_at = $7, enabled = $8, saga = $9::jsonb,
				last_rebalance_at = $10, updated_at = NOW()
			 WHERE id = $1`,
			int32(s.ID), nullablePool(s.CurrentPool), nullablePosition(s.PositionID), s.TotalShares, s.TotalBalance,
			s.CurrentLiquidity, s.LiquidityUpdatedAt, s.Enabled, saga, s.LastRebalanceAt)
		if err != nil {
			return fmt.Errorf("updating strategy %d: %w", s.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM strategy_positions WHERE strategy_id = $1`, int32(s.ID)); err != nil {
			return fmt.Errorf("clearing strategy positions: %w", err)
		}
		positions := lo.MapToSlice(s.UserShares, func(account domain.Account, shares decimal.Decimal) []any {
			return []any{int32(s.ID), account.String(), shares, s.InitialDeposit[account]}
		})
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"strategy_positions"},
			[]string{"strategy_id", "account", "shares", "initial_deposit"},
			pgx.CopyFromRows(positions)); err != nil {
			return fmt.Errorf("writing strategy positions: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM strategy_payouts WHERE strategy_id = $1`, int32(s.ID)); err != nil {
			return fmt.Errorf("clearing pending payouts: %w", err)
		}
		for _, p := range s.PendingPayouts {
			if _, err := tx.Exec(ctx,
				`INSERT INTO strategy_payouts (strategy_id, account, token, amount, reason, created_at, settling)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				int32(s.ID), p.Account.String(), p.Token, p.Amount, p.Reason, p.CreatedAt, p.Settling); err != nil {
				return fmt.Errorf("writing pending payout: %w", err)
			}
		}
		return nil
	})
}

func (r *PgRepository) Ensure(ctx context.Context, def *Strategy) error {
	saga, err := json.Marshal(Saga{State: Stable})
	if err != nil {
		return fmt.Errorf("encoding saga: %w", err)
	}
	pools := lo.Map(def.Pools, func(p pool.ID, _ int) string { return string(p) })
	_, err = r.pool.Exec(ctx,
		`INSERT INTO strategies (id, name, description, base_token, profile, pools, enabled, saga,
			total_shares, total_balance, current_liquidity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, 0, 0, 0)
		 ON CONFLICT (id) DO UPDATE SET name = $2, description = $3, base_token = $4, profile = $5, pools = $6`,
		int32(def.ID), def.Name, def.Description, def.BaseToken, def.Profile, pools, def.Enabled, saga)
	if err != nil {
		return fmt.Errorf("ensuring strategy %d: %w", def.ID, err)
	}
	return nil
}

func nullablePool(id *pool.ID) *string {
	if id == nil {
		return nil
	}
	return lo.ToPtr(string(*id))
}

func nullablePosition(id *uint64) *int64 {
	if id == nil {
		return nil
	}
	return lo.ToPtr(int64(*id))
}
