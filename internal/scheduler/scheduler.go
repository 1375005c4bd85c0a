// Package scheduler provides a single-goroutine deadline scheduler used for
// expectation expiry sweeps and delayed actions. Tasks are kept in a min-heap
// keyed by deadline; one timer goroutine fires the earliest task and
// re-arms.
package scheduler

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/expectd/expectd/pkg/logging"
)

// Task is a scheduled callback. It runs on its own goroutine so a slow task
// never delays later deadlines.
type Task func()

// Handle identifies a scheduled task for cancellation.
type Handle uint64

type entry struct {
	handle   Handle
	deadline time.Time
	interval time.Duration // non-zero for repeating tasks
	task     Task
	index    int
	canceled bool
}

type taskHeap []*entry

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)        { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler runs tasks at deadlines. The zero value is not usable; use New.
type Scheduler struct {
	log *slog.Logger

	mu      sync.Mutex
	heap    taskHeap
	byID    map[Handle]*entry
	nextID  Handle
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// New creates a started scheduler.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	s := &Scheduler{
		log:  log,
		byID: make(map[Handle]*entry),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// ScheduleAt runs task once at the given deadline. A deadline in the past
// fires immediately.
func (s *Scheduler) ScheduleAt(deadline time.Time, task Task) Handle {
	return s.schedule(deadline, 0, task)
}

// ScheduleEvery runs task repeatedly with the given interval, first firing
// one interval from now.
func (s *Scheduler) ScheduleEvery(interval time.Duration, task Task) Handle {
	return s.schedule(time.Now().Add(interval), interval, task)
}

func (s *Scheduler) schedule(deadline time.Time, interval time.Duration, task Task) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}
	s.nextID++
	e := &entry{handle: s.nextID, deadline: deadline, interval: interval, task: task}
	heap.Push(&s.heap, e)
	s.byID[e.handle] = e
	s.kick()
	return e.handle
}

// Cancel removes a scheduled task. It reports whether the task was still
// pending; a task already running is not interrupted.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[h]
	if !ok {
		return false
	}
	e.canceled = true
	delete(s.byID, h)
	if e.index >= 0 {
		heap.Remove(&s.heap, e.index)
	}
	s.kick()
	return true
}

// Stop shuts the scheduler down. Pending tasks are dropped; running tasks
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.heap = nil
	s.byID = map[Handle]*entry{}
	s.mu.Unlock()
	close(s.done)
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.heap) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.heap[0].deadline)
		}
		s.mu.Unlock()

		if wait > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}

		s.fireDue()

		select {
		case <-s.done:
			return
		default:
		}
	}
}

// fireDue pops and runs every entry whose deadline has passed.
func (s *Scheduler) fireDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if s.stopped || len(s.heap) == 0 || s.heap[0].deadline.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.heap).(*entry)
		if e.canceled {
			s.mu.Unlock()
			continue
		}
		if e.interval > 0 {
			e.deadline = now.Add(e.interval)
			heap.Push(&s.heap, e)
		} else {
			delete(s.byID, e.handle)
		}
		task := e.task
		s.mu.Unlock()

		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("scheduled task panicked", "panic", r)
				}
			}()
			task()
		}()
	}
}
