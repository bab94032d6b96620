package sim

import "time"

const minTimerInterval = time.Millisecond

// CancelFunc stops a scheduled callback. Calling it more than once is safe.
// It is an alias so packages below sim can describe the same method set.
type CancelFunc = func()

// Timers schedules callbacks on the core's single logical thread. Every
// callback runs to completion before the next one starts.
type Timers interface {
	Now() time.Time
	Every(interval time.Duration, fn func(now time.Time)) CancelFunc
	After(delay time.Duration, fn func(now time.Time)) CancelFunc
}

type timer struct {
	id       uint64
	due      time.Time
	interval time.Duration
	fn       func(time.Time)
}

// Scheduler is a virtual-time implementation of Timers. Time only moves when
// Advance or AdvanceTo is called, which makes periodic work deterministic.
type Scheduler struct {
	now    time.Time
	nextID uint64
	timers []*timer
	fired  uint64
}

// NewScheduler constructs a scheduler whose clock starts at start.
func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

// Now reports the scheduler's virtual time.
func (s *Scheduler) Now() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.now
}

// Every runs fn each interval, first at Now()+interval.
func (s *Scheduler) Every(interval time.Duration, fn func(now time.Time)) CancelFunc {
	if interval < minTimerInterval {
		interval = minTimerInterval
	}
	return s.schedule(interval, interval, fn)
}

// After runs fn once, delay from now.
func (s *Scheduler) After(delay time.Duration, fn func(now time.Time)) CancelFunc {
	if delay < 0 {
		delay = 0
	}
	return s.schedule(delay, 0, fn)
}

func (s *Scheduler) schedule(delay, interval time.Duration, fn func(time.Time)) CancelFunc {
	if s == nil || fn == nil {
		return func() {}
	}
	s.nextID++
	t := &timer{id: s.nextID, due: s.now.Add(delay), interval: interval, fn: fn}
	s.timers = append(s.timers, t)
	return func() { s.remove(t.id) }
}

// Advance moves virtual time forward by d, firing due callbacks in due-time
// order. Callbacks scheduled while advancing fire in the same call when they
// fall due before the target. It returns the number of callbacks fired.
func (s *Scheduler) Advance(d time.Duration) int {
	if s == nil {
		return 0
	}
	if d < 0 {
		d = 0
	}
	return s.AdvanceTo(s.now.Add(d))
}

// AdvanceTo moves virtual time to target. Targets in the past are ignored.
func (s *Scheduler) AdvanceTo(target time.Time) int {
	if s == nil || target.Before(s.now) {
		return 0
	}
	fired := 0
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.now = next.due
		if next.interval > 0 {
			next.due = next.due.Add(next.interval)
		} else {
			s.remove(next.id)
		}
		next.fn(s.now)
		fired++
	}
	s.now = target
	s.fired += uint64(fired)
	return fired
}

// Pending reports the number of live timers.
func (s *Scheduler) Pending() int {
	if s == nil {
		return 0
	}
	return len(s.timers)
}

// Fired reports the total number of callbacks fired so far.
func (s *Scheduler) Fired() uint64 {
	if s == nil {
		return 0
	}
	return s.fired
}

func (s *Scheduler) nextDue(target time.Time) *timer {
	var next *timer
	for _, t := range s.timers {
		if t.due.After(target) {
			continue
		}
		if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.id < next.id) {
			next = t
		}
	}
	return next
}

func (s *Scheduler) remove(id uint64) {
	for i, t := range s.timers {
		if t.id == id {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}

var _ Timers = (*Scheduler)(nil)
