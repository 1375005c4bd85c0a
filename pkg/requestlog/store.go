package requestlog

import (
	"log/slog"
	"sync"

	"github.com/expectd/expectd/internal/matching"
	"github.com/expectd/expectd/pkg/logging"
	"github.com/expectd/expectd/pkg/mock"
)

// DefaultCapacity bounds the recorded request history.
const DefaultCapacity = 1000

// Store is a bounded, concurrency-safe ring of recorded requests.
type Store struct {
	log *slog.Logger
	sm  *matching.StringMatcher

	mu       sync.RWMutex
	entries  []*Entry // ring buffer, oldest at head
	head     int
	size     int
	capacity int
}

// NewStore creates a store keeping at most capacity entries; non-positive
// capacity means DefaultCapacity.
func NewStore(log *slog.Logger, sm *matching.StringMatcher, capacity int) *Store {
	if log == nil {
		log = logging.Nop()
	}
	if sm == nil {
		sm = matching.NewStringMatcher(log, 0)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		log:      log,
		sm:       sm,
		entries:  make([]*Entry, capacity),
		capacity: capacity,
	}
}

// Record appends an entry, evicting the oldest when full.
func (s *Store) Record(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == s.capacity {
		s.entries[s.head] = e
		s.head = (s.head + 1) % s.capacity
		return
	}
	s.entries[(s.head+s.size)%s.capacity] = e
	s.size++
}

// Count returns the number of recorded entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Clear drops the whole history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]*Entry, s.capacity)
	s.head = 0
	s.size = 0
}

// Retrieve returns the recorded entries matching the selector in arrival
// order. A nil selector selects everything.
func (s *Store) Retrieve(selector *mock.RequestDefinition) ([]*Entry, error) {
	sel, err := s.compileSelector(selector)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for i := 0; i < s.size; i++ {
		e := s.entries[(s.head+i)%s.capacity]
		if sel == nil || sel.Matches(e.Request) {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountMatching returns how many recorded requests match the selector.
func (s *Store) CountMatching(selector *mock.RequestDefinition) (int, error) {
	matched, err := s.Retrieve(selector)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *Store) compileSelector(selector *mock.RequestDefinition) (*matching.RequestMatcher, error) {
	if selector == nil {
		return nil, nil
	}
	return matching.Compile(s.sm, s.log, selector)
}
