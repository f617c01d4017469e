// Package event is the append-only audit log of vault operations.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one appended event. Records never change after Append.
type Record struct {
	ID            uint64
	CorrelationID string
	Actor         string
	StrategyID    *uint16
	Timestamp     time.Time
	Payload       Payload
}

// Kind returns the payload kind.
func (r Record) Kind() Kind { return r.Payload.Kind() }

// Entry is what a caller hands to Append.
type Entry struct {
	CorrelationID string
	Actor         string
	StrategyID    *uint16
	Payload       Payload
}

type recordJSON struct {
	ID            uint64          `json:"id"`
	Kind          Kind            `json:"kind"`
	CorrelationID string          `json:"correlationId"`
	Actor         string          `json:"actor,omitempty"`
	StrategyID    *uint16         `json:"strategyId,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", r.Kind(), err)
	}
	return json.Marshal(recordJSON{
		ID:            r.ID,
		Kind:          r.Kind(),
		CorrelationID: r.CorrelationID,
		Actor:         r.Actor,
		StrategyID:    r.StrategyID,
		Timestamp:     r.Timestamp,
		Payload:       payload,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	*r = Record{
		ID:            raw.ID,
		CorrelationID: raw.CorrelationID,
		Actor:         raw.Actor,
		StrategyID:    raw.StrategyID,
		Timestamp:     raw.Timestamp,
		Payload:       payload,
	}
	return nil
}

// searchText is the lower-cased text a search term is matched against.
func searchText(kind Kind, correlationID, actor string, payload []byte) string {
	return strings.ToLower(strings.Join([]string{string(kind), correlationID, actor, string(payload)}, "\x00"))
}

// NewCorrelationID returns a fresh identifier for one logical operation.
func NewCorrelationID() string {
	return uuid.NewString()
}

// SortOrder controls traversal direction of List.
type SortOrder string

const (
	Asc  SortOrder = "Asc"
	Desc SortOrder = "Desc"
)

// ParseSortOrder accepts Asc/Desc in any case. Empty means Asc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort order %q", s)
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// Query selects one page of the log. Page is zero-based.
type Query struct {
	Page     int
	PageSize int
	Sort     SortOrder
	Search   string
}

func (q Query) normalized() Query {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	q.PageSize = min(q.PageSize, MaxPageSize)
	if q.Sort != Desc {
		q.Sort = Asc
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// offset saturates at math.MaxInt so that a huge page lands past the end
// instead of wrapping negative.
func (q Query) offset() int {
	if q.Page > (math.MaxInt-q.PageSize)/q.PageSize {
		return math.MaxInt
	}
	return q.Page * q.PageSize
}

// Page is one slice of the log plus the number of matching records.
type Page struct {
	Items    []Record `json:"items"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
}

// Store is the append-only event log.
type Store interface {
	Append(ctx context.Context, e Entry) (Record, error)
	List(ctx context.Context, q Query) (Page, error)
	ByCorrelation(ctx context.Context, correlationID string) ([]Record, error)
}
