package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

type memoryRecord struct {
	Record
	text string
}

// MemoryStore keeps the log in a growable slice indexed by sequence number.
// Readers copy the slice header under the lock and then work lock-free, since
// appended records are never modified.
type MemoryStore struct {
	mu      sync.RWMutex
	records []memoryRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory event log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) (Record, error) {
	if e.Payload == nil {
		return Record{}, fmt.Errorf("appending event: nil payload")
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("encoding %s payload: %w", e.Payload.Kind(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Record{
		ID:            uint64(len(s.records)) + 1,
		CorrelationID: e.CorrelationID,
		Actor:         e.Actor,
		StrategyID:    e.StrategyID,
		Timestamp:     s.now().UTC(),
		Payload:       e.Payload,
	}
	s.records = append(s.records, memoryRecord{
		Record: rec,
		text:   searchText(rec.Kind(), rec.CorrelationID, rec.Actor, payload),
	})
	return rec, nil
}

func (s *MemoryStore) snapshot() []memoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[:len(s.records):len(s.records)]
}

func (s *MemoryStore) List(_ context.Context, q Query) (Page, error) {
	q = q.normalized()
	matched := s.snapshot()
	if q.Search != "" {
		term := strings.ToLower(q.Search)
		matched = lo.Filter(matched, func(r memoryRecord, _ int) bool {
			return strings.Contains(r.text, term)
		})
	}

	page := Page{Items: []Record{}, Total: len(matched), Page: q.Page, PageSize: q.PageSize}
	start := q.offset()
	if start >= len(matched) {
		return page, nil
	}
	end := min(start+q.PageSize, len(matched))

	page.Items = make([]Record, 0, end-start)
	for i := start; i < end; i++ {
		idx := i
		if q.Sort == Desc {
			idx = len(matched) - 1 - i
		}
		page.Items = append(page.Items, matched[idx].Record)
	}
	return page, nil
}

func (s *MemoryStore) ByCorrelation(_ context.Context, correlationID string) ([]Record, error) {
	return lo.FilterMap(s.snapshot(), func(r memoryRecord, _ int) (Record, bool) {
		return r.Record, r.CorrelationID == correlationID
	}), nil
}
