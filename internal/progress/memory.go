package progress

import (
	"sync"
	"time"

	"github.com/cesargomez89/stemforge/internal/domain"
)

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu  sync.Mutex
	rec *domain.ProgressRecord

	// Writes counts successful Write calls, letting tests assert on
	// write throttling.
	Writes int
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Read() (*domain.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	out := *s.rec
	return &out, nil
}

func (s *MemStore) Write(rec *domain.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.rec = &cp
	s.Writes++
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
