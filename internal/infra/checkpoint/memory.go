package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps the checkpoint in memory. Errors can be injected to
// exercise failure handling.
type MemoryStore struct {
	mu        sync.Mutex
	record    *Record
	saveErr   error
	clearErr  error
	saves     int
	clears    int
	closed    bool
	saveAfter func(Record)
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	rec := r
	s.record = &rec
	if s.saveAfter != nil {
		s.saveAfter(r)
	}
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return Record{}, ErrNotFound
	}
	if err := s.record.Validate(); err != nil {
		return Record{}, err
	}
	return *s.record, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.clears++
	s.record = nil
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Put stores a record directly, bypassing validation.
func (s *MemoryStore) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := r
	s.record = &rec
}

// Current returns the stored record, if any.
func (s *MemoryStore) Current() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return Record{}, false
	}
	return *s.record, true
}

// FailSaves makes subsequent Save calls return err. Pass nil to recover.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// FailClears makes subsequent Clear calls return err. Pass nil to recover.
func (s *MemoryStore) FailClears(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearErr = err
}

// OnSave registers a callback invoked after each successful Save.
func (s *MemoryStore) OnSave(fn func(Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveAfter = fn
}

// Saves returns the number of successful saves.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Clears returns the number of successful clears.
func (s *MemoryStore) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

// Closed reports whether Close has been called.
func (s *MemoryStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
