package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleAtFires(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	fired := make(chan struct{})
	s.ScheduleAt(time.Now().Add(10*time.Millisecond), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}
}

func TestScheduleAtPastDeadline(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	fired := make(chan struct{})
	s.ScheduleAt(time.Now().Add(-time.Minute), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("past-deadline task did not fire")
	}
}

func TestScheduleOrdering(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	order := make(chan int, 2)
	now := time.Now()
	s.ScheduleAt(now.Add(80*time.Millisecond), func() { order <- 2 })
	s.ScheduleAt(now.Add(20*time.Millisecond), func() { order <- 1 })

	assert.Equal(t, 1, <-order)
	assert.Equal(t, 2, <-order)
}

func TestCancel(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fired atomic.Bool
	h := s.ScheduleAt(time.Now().Add(50*time.Millisecond), func() { fired.Store(true) })
	assert.True(t, s.Cancel(h))
	assert.False(t, s.Cancel(h))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestScheduleEvery(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var count atomic.Int32
	h := s.ScheduleEvery(20*time.Millisecond, func() { count.Add(1) })

	time.Sleep(110 * time.Millisecond)
	s.Cancel(h)
	n := count.Load()
	assert.GreaterOrEqual(t, n, int32(2))

	// one in-flight firing may still land after Cancel, no more
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), n+1, "canceled repeating task kept firing")
}

func TestStopDropsPending(t *testing.T) {
	s := New(nil)

	var fired atomic.Bool
	s.ScheduleAt(time.Now().Add(50*time.Millisecond), func() { fired.Store(true) })
	s.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.False(t, fired.Load())

	// scheduling after Stop is a no-op
	assert.Equal(t, Handle(0), s.ScheduleAt(time.Now(), func() { fired.Store(true) }))
}
