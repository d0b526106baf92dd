package cycle

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped it.
	Stop() bool
}

// Scheduler runs callbacks after a delay and tells the time.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// RealScheduler uses the wall clock.
type RealScheduler struct{}

// AfterFunc wraps time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Now returns time.Now().
func (RealScheduler) Now() time.Time { return time.Now() }

// VirtualScheduler runs on a clock that only moves when Advance is called.
// Replays and tests use it to drive timeouts from event timestamps.
type VirtualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*virtualTimer
}

type virtualTimer struct {
	s        *VirtualScheduler
	seq      int
	deadline time.Time
	f        func()
	stopped  bool
}

// NewVirtualScheduler creates a scheduler whose clock starts at start.
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{now: start}
}

// Now returns the virtual time.
func (s *VirtualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc schedules f at Now()+d.
func (s *VirtualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &virtualTimer{s: s, seq: s.seq, deadline: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (s *VirtualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock to to, firing due timers in deadline order. Each
// callback runs with the clock set to its deadline and without the
// scheduler's lock held. The clock never moves backwards.
func (s *VirtualScheduler) Advance(to time.Time) {
	for {
		s.mu.Lock()
		due := s.nextDue(to)
		if due == nil {
			if to.After(s.now) {
				s.now = to
			}
			s.mu.Unlock()
			return
		}
		due.stopped = true
		if due.deadline.After(s.now) {
			s.now = due.deadline
		}
		s.mu.Unlock()
		due.f()
	}
}

func (s *VirtualScheduler) nextDue(to time.Time) *virtualTimer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.timers = live
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].deadline.Equal(s.timers[j].deadline) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].deadline.Before(s.timers[j].deadline)
	})
	if len(s.timers) == 0 || s.timers[0].deadline.After(to) {
		return nil
	}
	return s.timers[0]
}

func (t *virtualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
