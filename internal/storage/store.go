package storage

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/expectd/expectd/internal/matching"
	"github.com/expectd/expectd/internal/scheduler"
	"github.com/expectd/expectd/pkg/logging"
	"github.com/expectd/expectd/pkg/mock"
)

// ChangeReason tells listeners why the active set changed.
type ChangeReason string

const (
	ChangeUpsert  ChangeReason = "upsert"
	ChangeClear   ChangeReason = "clear"
	ChangeReset   ChangeReason = "reset"
	ChangeExpired ChangeReason = "expired"
)

// Listener observes changes to the active expectation set. Listeners run on
// their own goroutine and must not assume ordering across notifications.
type Listener func(reason ChangeReason, affected []*mock.Expectation)

// DefaultMaxExpectations caps the stored expectation count.
const DefaultMaxExpectations = 5000

// DefaultSweepInterval is how often expired expectations are collected.
const DefaultSweepInterval = 10 * time.Second

type stored struct {
	exp     *mock.Expectation
	matcher *matching.RequestMatcher
}

// snapshot is the immutable view matched against. Writers build a fresh one
// and swap the pointer; in-flight readers keep the old view.
type snapshot struct {
	ordered []*stored
	byID    map[string]*stored
}

func emptySnapshot() *snapshot {
	return &snapshot{byID: map[string]*stored{}}
}

// RequestMatchers is the ordered, concurrent store of expectations. Matching
// walks the priority-ordered snapshot and returns the first live hit,
// consuming one unit of its Times budget.
type RequestMatchers struct {
	log *slog.Logger
	sm  *matching.StringMatcher

	maxExpectations int

	mu   sync.Mutex // serializes writers; readers go through snap
	snap atomic.Pointer[snapshot]
	seq  uint64

	listenerMu sync.RWMutex
	listeners  []Listener

	sweepHandle scheduler.Handle
	sched       *scheduler.Scheduler
}

// Option configures a RequestMatchers store.
type Option func(*RequestMatchers)

// WithMaxExpectations overrides the stored expectation cap.
func WithMaxExpectations(n int) Option {
	return func(s *RequestMatchers) {
		if n > 0 {
			s.maxExpectations = n
		}
	}
}

// WithSweeper schedules a periodic sweep of expired expectations.
func WithSweeper(sched *scheduler.Scheduler, interval time.Duration) Option {
	return func(s *RequestMatchers) {
		if interval <= 0 {
			interval = DefaultSweepInterval
		}
		s.sched = sched
		s.sweepHandle = sched.ScheduleEvery(interval, func() { s.SweepExpired() })
	}
}

// NewRequestMatchers creates an empty store.
func NewRequestMatchers(log *slog.Logger, sm *matching.StringMatcher, opts ...Option) *RequestMatchers {
	if log == nil {
		log = logging.Nop()
	}
	if sm == nil {
		sm = matching.NewStringMatcher(log, 0)
	}
	s := &RequestMatchers{
		log:             log,
		sm:              sm,
		maxExpectations: DefaultMaxExpectations,
	}
	s.snap.Store(emptySnapshot())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close cancels the expiry sweeper.
func (s *RequestMatchers) Close() {
	if s.sched != nil {
		s.sched.Cancel(s.sweepHandle)
	}
}

// OnChange registers a listener for active-set changes.
func (s *RequestMatchers) OnChange(l Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *RequestMatchers) notify(reason ChangeReason, affected []*stored) {
	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	clones := make([]*mock.Expectation, len(affected))
	for i, st := range affected {
		clones[i] = st.exp.Clone()
	}
	for _, l := range listeners {
		go l(reason, clones)
	}
}

// Upsert validates and stores a batch of expectations atomically: either
// every expectation in the batch is applied or none is. Existing IDs are
// replaced in place, keeping their creation time so ordering stays stable.
func (s *RequestMatchers) Upsert(exps ...*mock.Expectation) ([]*mock.Expectation, error) {
	if len(exps) == 0 {
		return nil, nil
	}

	// compile everything before touching the store
	compiled := make([]*stored, len(exps))
	seen := make(map[string]int, len(exps))
	for i, exp := range exps {
		if exp == nil {
			return nil, fmt.Errorf("expectation %d in batch is nil", i)
		}
		if err := exp.Validate(); err != nil {
			return nil, err
		}
		if prev, dup := seen[exp.ID]; dup {
			return nil, fmt.Errorf("duplicate id %s at batch positions %d and %d", exp.ID, prev, i)
		}
		seen[exp.ID] = i
		m, err := matching.Compile(s.sm, s.log, exp.Request)
		if err != nil {
			return nil, fmt.Errorf("expectation %s: %w", exp.ID, err)
		}
		compiled[i] = &stored{exp: exp, matcher: m}
	}

	s.mu.Lock()
	current := s.snap.Load()

	added := 0
	for _, st := range compiled {
		if _, exists := current.byID[st.exp.ID]; !exists {
			added++
		}
	}
	if len(current.ordered)+added > s.maxExpectations {
		s.mu.Unlock()
		return nil, fmt.Errorf("expectation limit of %d exceeded", s.maxExpectations)
	}

	next := &snapshot{byID: make(map[string]*stored, len(current.byID)+added)}
	replaced := make(map[string]*stored, len(compiled))
	for _, st := range compiled {
		replaced[st.exp.ID] = st
	}
	for _, st := range current.ordered {
		if incoming, hit := replaced[st.exp.ID]; hit {
			// an update keeps its slot in the creation order
			incoming.exp.Created = st.exp.Created
			incoming.exp.SetSequence(st.exp.Sequence())
			continue
		}
		next.ordered = append(next.ordered, st)
		next.byID[st.exp.ID] = st
	}
	for _, st := range compiled {
		if st.exp.Created.IsZero() {
			st.exp.Created = time.Now()
		}
		if st.exp.Sequence() == 0 {
			s.seq++
			st.exp.SetSequence(s.seq)
		}
		next.ordered = append(next.ordered, st)
		next.byID[st.exp.ID] = st
	}
	sortSnapshot(next)
	s.snap.Store(next)
	s.mu.Unlock()

	s.notify(ChangeUpsert, compiled)

	out := make([]*mock.Expectation, len(compiled))
	for i, st := range compiled {
		out[i] = st.exp.Clone()
	}
	return out, nil
}

func sortSnapshot(snap *snapshot) {
	sort.SliceStable(snap.ordered, func(i, j int) bool {
		return snap.ordered[i].exp.SortsBefore(snap.ordered[j].exp)
	})
}

// Match returns the first live expectation matching the request, consuming
// one unit of its Times budget, or nil. Readers race only on the per-
// expectation counters, never on the snapshot itself.
func (s *RequestMatchers) Match(req *mock.HTTPRequest) *mock.Expectation {
	snap := s.snap.Load()
	for _, st := range snap.ordered {
		if !st.exp.IsActive() {
			continue
		}
		if !st.matcher.Matches(req) {
			continue
		}
		if !st.exp.Times.IsUnlimited() && !st.exp.DecrementRemainingMatches() {
			// lost the race for the last remaining use
			continue
		}
		return st.exp.Clone()
	}
	return nil
}

// Get returns a clone of the expectation with the given id, or nil.
func (s *RequestMatchers) Get(expectationID string) *mock.Expectation {
	if st, ok := s.snap.Load().byID[expectationID]; ok {
		return st.exp.Clone()
	}
	return nil
}

// Count returns the stored expectation count, spent and expired included.
func (s *RequestMatchers) Count() int {
	return len(s.snap.Load().ordered)
}

// RetrieveActive returns clones of the live expectations intersecting the
// selector, in matching order. A nil selector selects everything.
func (s *RequestMatchers) RetrieveActive(selector *mock.RequestDefinition) ([]*mock.Expectation, error) {
	return s.retrieve(selector, true)
}

// RetrieveAll is RetrieveActive without the liveness filter.
func (s *RequestMatchers) RetrieveAll(selector *mock.RequestDefinition) ([]*mock.Expectation, error) {
	return s.retrieve(selector, false)
}

func (s *RequestMatchers) retrieve(selector *mock.RequestDefinition, activeOnly bool) ([]*mock.Expectation, error) {
	sel, err := s.compileSelector(selector)
	if err != nil {
		return nil, err
	}
	var out []*mock.Expectation
	for _, st := range s.snap.Load().ordered {
		if activeOnly && !st.exp.IsActive() {
			continue
		}
		if sel != nil && !sel.MatchesDefinition(st.exp.Request) {
			continue
		}
		out = append(out, st.exp.Clone())
	}
	return out, nil
}

// ClearByID removes a single expectation, reporting whether it existed.
func (s *RequestMatchers) ClearByID(expectationID string) bool {
	removed := s.remove(ChangeClear, func(st *stored) bool {
		return st.exp.ID == expectationID
	})
	return removed > 0
}

// Clear removes every expectation intersecting the selector and returns how
// many were removed. A nil selector clears everything.
func (s *RequestMatchers) Clear(selector *mock.RequestDefinition) (int, error) {
	sel, err := s.compileSelector(selector)
	if err != nil {
		return 0, err
	}
	return s.remove(ChangeClear, func(st *stored) bool {
		return sel == nil || sel.MatchesDefinition(st.exp.Request)
	}), nil
}

// Reset drops the whole active set.
func (s *RequestMatchers) Reset() {
	s.remove(ChangeReset, func(*stored) bool { return true })
}

// SweepExpired removes expectations whose TimeToLive has passed or whose
// Times budget is spent, returning how many were collected.
func (s *RequestMatchers) SweepExpired() int {
	now := time.Now()
	n := s.remove(ChangeExpired, func(st *stored) bool {
		return st.exp.TimeToLive.Expired(now) || st.exp.Times.Spent()
	})
	if n > 0 {
		s.log.Debug("swept inactive expectations", "count", n)
	}
	return n
}

func (s *RequestMatchers) remove(reason ChangeReason, drop func(*stored) bool) int {
	s.mu.Lock()
	current := s.snap.Load()
	next := &snapshot{byID: make(map[string]*stored, len(current.byID))}
	var removed []*stored
	for _, st := range current.ordered {
		if drop(st) {
			removed = append(removed, st)
			continue
		}
		next.ordered = append(next.ordered, st)
		next.byID[st.exp.ID] = st
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.snap.Store(next)
	s.mu.Unlock()

	s.notify(reason, removed)
	return len(removed)
}

func (s *RequestMatchers) compileSelector(selector *mock.RequestDefinition) (*matching.RequestMatcher, error) {
	if selector == nil {
		return nil, nil
	}
	sel, err := matching.Compile(s.sm, s.log, selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}
	return sel, nil
}
