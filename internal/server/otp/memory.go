package otp

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store. Each owner has a cancellable expiry
// timer; a generation counter keeps a superseded timer from evicting a newer
// code.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	gen     uint64
	now     func() time.Time
}

type memoryEntry struct {
	code      string
	expiresAt time.Time
	gen       uint64
	timer     *time.Timer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, owner, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[owner]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	s.entries[owner] = &memoryEntry{
		code:      code,
		expiresAt: s.now().Add(ttl),
		gen:       gen,
		timer:     time.AfterFunc(ttl, func() { s.expire(owner, gen) }),
	}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, owner, candidate string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[owner]
	if !ok {
		return Absent, nil
	}
	if !s.now().Before(e.expiresAt) {
		e.timer.Stop()
		delete(s.entries, owner)
		return Absent, nil
	}
	if e.code != candidate {
		return Mismatch, nil
	}

	e.timer.Stop()
	delete(s.entries, owner)
	return Match, nil
}

// Len reports how many owners currently hold a code.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops every pending expiry timer and drops all codes.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, owner)
	}
	return nil
}

func (s *MemoryStore) expire(owner string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[owner]; ok && e.gen == gen {
		delete(s.entries, owner)
	}
}
