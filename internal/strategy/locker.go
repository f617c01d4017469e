package strategy

import (
	"context"
	"sync"
)

// locker hands out one mutex per strategy. Waiting honours ctx; once acquired
// the lock is held until unlock is called.
type locker struct {
	mu    sync.Mutex
	slots map[ID]chan struct{}
}

func newLocker() *locker {
	return &locker{slots: make(map[ID]chan struct{})}
}

func (l *locker) slot(id ID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

func (l *locker) lock(ctx context.Context, id ID) (func(), error) {
	ch := l.slot(id)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
