package revocation

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	userID    uint64
	expiresAt time.Time
}

// MemoryRegistry is a process-local Registry backed by sync.Map: reads
// are lock-free and writes (ban create/lift) are rare.
type MemoryRegistry struct {
	entries sync.Map // token -> entry
	now     func() time.Time
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{now: time.Now}
}

var _ Registry = (*MemoryRegistry)(nil)

func (m *MemoryRegistry) Revoke(_ context.Context, token string, userID uint64, expiresAt time.Time) error {
	if token == "" {
		return nil
	}
	m.entries.Store(token, entry{userID: userID, expiresAt: expiresAt})
	return nil
}

func (m *MemoryRegistry) IsRevoked(_ context.Context, token string) bool {
	if token == "" {
		return false
	}
	v, ok := m.entries.Load(token)
	if !ok {
		return false
	}
	e := v.(entry)
	if !e.expiresAt.After(m.now()) {
		// The token is dead on its own; drop the entry lazily.
		m.entries.CompareAndDelete(token, v)
		return false
	}
	return true
}

// Release removes every entry whose value is userID, not just the most
// recent one, so a user re-issued tokens while banned leaves nothing
// behind.
func (m *MemoryRegistry) Release(_ context.Context, userID uint64) (int, error) {
	removed := 0
	m.entries.Range(func(k, v any) bool {
		if v.(entry).userID == userID && m.entries.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	return removed, nil
}

func (m *MemoryRegistry) Purge(_ context.Context, now time.Time) int {
	removed := 0
	m.entries.Range(func(k, v any) bool {
		if !v.(entry).expiresAt.After(now) && m.entries.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryRegistry) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool { n++; return true })
	return n
}
