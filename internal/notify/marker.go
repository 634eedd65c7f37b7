// Package notify provides at-most-once delivery markers for verdict
// rendering. The upstream pipeline may retry its callback; a marker is
// claimed once per correlation token so the user sees a verdict at most
// once and the public ledger notice posts at most once.
package notify

import (
	"context"
	"sync"
)

// Marker records first-delivery claims keyed by an opaque token.
type Marker interface {
	// FirstDelivery reports whether this call is the first claim for token.
	// Errors on the backing store degrade to "first" so a broken marker
	// store never swallows a verdict; a duplicate notice is the lesser harm.
	FirstDelivery(ctx context.Context, token string) bool
	Close() error
}

// MemoryMarker is the in-process fallback used when Redis is not
// configured. Markers do not survive a restart, which matches the rest of
// the engine's lifetime.
type MemoryMarker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{seen: make(map[string]struct{})}
}

func (m *MemoryMarker) FirstDelivery(_ context.Context, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[token]; ok {
		return false
	}
	m.seen[token] = struct{}{}
	return true
}

func (m *MemoryMarker) Close() error { return nil }
