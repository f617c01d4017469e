package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// appendLockKey serializes appends so sequence numbers become visible in order.
const appendLockKey = 0x7661756c74 // "vault"

// PgStore implements Store with PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL event log.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Append(ctx context.Context, e Entry) (Record, error) {
	if e.Payload == nil {
		return Record{}, fmt.Errorf("appending event: nil payload")
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("encoding %s payload: %w", e.Payload.Kind(), err)
	}

	rec := Record{
		CorrelationID: e.CorrelationID,
		Actor:         e.Actor,
		StrategyID:    e.StrategyID,
		Payload:       e.Payload,
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(appendLockKey)); err != nil {
			return fmt.Errorf("acquiring append lock: %w", err)
		}
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO events (kind, correlation_id, actor, strategy_id, payload, search_text)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5::jsonb, $6)
			 RETURNING id, created_at`,
			string(rec.Kind()), rec.CorrelationID, rec.Actor, strategyIDArg(rec.StrategyID), payload,
			searchText(rec.Kind(), rec.CorrelationID, rec.Actor, payload),
		).Scan(&id, &rec.Timestamp)
		rec.ID = uint64(id)
		return err
	})
	if err != nil {
		return Record{}, fmt.Errorf("appending %s event: %w", rec.Kind(), err)
	}
	return rec, nil
}

func (s *PgStore) List(ctx context.Context, q Query) (Page, error) {
	q = q.normalized()
	page := Page{Items: []Record{}, Page: q.Page, PageSize: q.PageSize}

	where, args := "", []any{}
	if q.Search != "" {
		where = `WHERE search_text LIKE $1 ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(q.Search))+"%")
	}
	order := "ASC"
	if q.Sort == Desc {
		order = "DESC"
	}

	// Count and page inside one repeatable-read snapshot.
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM events `+where, args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("counting events: %w", err)
		}
		limitArg := len(args) + 1
		rows, err := tx.Query(ctx,
			fmt.Sprintf(`SELECT id, kind, correlation_id, COALESCE(actor, ''), strategy_id, payload, created_at
			 FROM events %s ORDER BY id %s LIMIT $%d OFFSET $%d`, where, order, limitArg, limitArg+1),
			append(args, q.PageSize, q.offset())...)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		items, err := collectRecords(rows)
		if err != nil {
			return err
		}
		page.Items = items
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (s *PgStore) ByCorrelation(ctx context.Context, correlationID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, correlation_id, COALESCE(actor, ''), strategy_id, payload, created_at
		 FROM events WHERE correlation_id = $1 ORDER BY id`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("listing events for %s: %w", correlationID, err)
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var (
			rec        Record
			id         int64
			kind       string
			strategyID *int32
			payload    []byte
		)
		if err := rows.Scan(&id, &kind, &rec.CorrelationID, &rec.Actor, &strategyID, &payload, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		p, err := DecodePayload(Kind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", id, err)
		}
		rec.ID = uint64(id)
		rec.Payload = p
		if strategyID != nil {
			sid := uint16(*strategyID)
			rec.StrategyID = &sid
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return records, nil
}

func strategyIDArg(id *uint16) any {
	if id == nil {
		return nil
	}
	return int32(*id)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
