package accountsync

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-memory EventLedger intended for testing and
// single-process deployments. Entries expire after TTL to bound memory.
type MemoryLedger struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewMemoryLedger creates a memory ledger. ttl <= 0 means entries never expire.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// MarkProcessed implements EventLedger.
func (l *MemoryLedger) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if l.ttl > 0 {
		for id, at := range l.seen {
			if now.Sub(at) > l.ttl {
				delete(l.seen, id)
			}
		}
	}

	if _, ok := l.seen[eventID]; ok {
		return false, nil
	}
	l.seen[eventID] = now
	return true, nil
}
