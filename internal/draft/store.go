package draft

import (
	"sync"
	"time"
)

type entry struct {
	mu    sync.Mutex
	draft *Draft
}

// Store holds all in-flight drafts. The outer mutex guards the map; each
// entry carries its own mutex so all mutations and transition checks for
// one session key are serialized without blocking unrelated sessions.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *Store) entryFor(key string, create bool) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok && create {
		e = &entry{draft: &Draft{
			SessionKey:    key,
			InvoiceNumber: key,
			Status:        StatusCollecting,
			UpdatedAt:     s.now(),
		}}
		s.entries[key] = e
	}
	return e
}

// Get returns a copy of the draft for key, if present.
func (s *Store) Get(key string) (Draft, bool) {
	e := s.entryFor(key, false)
	if e == nil {
		return Draft{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.draft, true
}

// WithLock runs fn with exclusive access to the draft for key, creating an
// empty collecting draft if the key is unknown. fn must not retain the
// pointer past its return.
func (s *Store) WithLock(key string, fn func(*Draft) error) error {
	e := s.entryFor(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	err := fn(e.draft)
	e.draft.UpdatedAt = s.now()
	return err
}

// Delete removes the draft for key. A goroutine already inside WithLock for
// the same key finishes against the detached entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Rekey moves a draft to a new session key after an invoice-number edit.
// The move is not atomic with respect to events still addressed to the old
// key; those start a fresh draft (known gap in the source behavior, kept).
func (s *Store) Rekey(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[oldKey]
	if !ok {
		return
	}
	delete(s.entries, oldKey)
	s.entries[newKey] = e
	e.mu.Lock()
	e.draft.SessionKey = newKey
	e.mu.Unlock()
}

// SweepOlderThan drops non-terminal drafts untouched for longer than
// maxAge and returns how many were removed. The engine itself never
// expires drafts; this exists so deployments can layer a TTL policy on top.
func (s *Store) SweepOlderThan(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		e.mu.Lock()
		stale := e.draft.UpdatedAt.Before(cutoff) && e.draft.Status != StatusSubmitting
		e.mu.Unlock()
		if stale {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of in-flight drafts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
