// Package timer implements the proxy's cooperative timer scheduler: a
// single tick loop that sleeps until the earliest next-fire time across
// all registered timers, fires everything due, and reschedules.
package timer

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"bastproxy/internal/logging"
)

// Func is a timer's fire callback. A returned error is logged against the
// timer's owner; the timer (if not one-shot) continues on schedule.
type Func func(ctx context.Context) error

// Spec describes one registered timer.
type Spec struct {
	Name       string
	Owner      string
	Fn         Func
	Interval   time.Duration // zero if TimeOfDay is set
	TimeOfDay  string        // "HHMM" in UTC, empty for plain interval timers
	Enabled    bool
	OneShot    bool
	Log        bool

	nextFire time.Time
	lastFire time.Time
	raised   uint64
	index    int // heap.Interface bookkeeping
}

// id is the scheduler-internal unique key for a timer.
func id(owner, name string) string { return owner + ":" + name }

// timerHeap orders *Spec by nextFire ascending; it implements
// container/heap.Interface.
type timerHeap []*Spec

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].nextFire.Before(h[j].nextFire) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { s := x.(*Spec); s.index = len(*h); *h = append(*h, s) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	*h = old[:n-1]
	return s
}

// Scheduler owns the timer set and the single tick loop.
type Scheduler struct {
	mu      sync.Mutex
	byID    map[string]*Spec
	pending timerHeap

	wake chan struct{}
}

// New returns an empty scheduler. Call Run to start its tick loop.
func New() *Scheduler {
	s := &Scheduler{
		byID: make(map[string]*Spec),
		wake: make(chan struct{}, 1),
	}
	heap.Init(&s.pending)
	return s
}

// Add registers a timer. now is injected by the caller (rather than taken
// from time.Now internally) so tests can control scheduling deterministically.
func (s *Scheduler) Add(now time.Time, spec Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id(spec.Owner, spec.Name)
	if _, exists := s.byID[key]; exists {
		return fmt.Errorf("timer: %q already registered for owner %q", spec.Name, spec.Owner)
	}

	sp := spec
	sp.index = -1
	sp.nextFire = s.computeNext(now, &sp)
	s.byID[key] = &sp
	if sp.Enabled {
		heap.Push(&s.pending, &sp)
	}
	s.notify()
	return nil
}

func (s *Scheduler) computeNext(from time.Time, sp *Spec) time.Time {
	if sp.TimeOfDay != "" {
		return nextTimeOfDay(from, sp.TimeOfDay)
	}
	return from.Add(sp.Interval)
}

// Remove deletes the (owner, name) timer. Returns whether anything was
// removed.
func (s *Scheduler) Remove(owner, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id(owner, name)
	sp, ok := s.byID[key]
	if !ok {
		return false
	}
	delete(s.byID, key)
	if sp.index >= 0 && sp.index < len(s.pending) {
		heap.Remove(&s.pending, sp.index)
	}
	return true
}

// UnloadOwner removes every timer owned by owner, used at plugin unload.
func (s *Scheduler) UnloadOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, sp := range s.byID {
		if sp.Owner == owner {
			delete(s.byID, key)
			if sp.index >= 0 && sp.index < len(s.pending) {
				heap.Remove(&s.pending, sp.index)
			}
			removed++
		}
	}
	return removed
}

// Toggle enables or disables a timer without removing its registration.
func (s *Scheduler) Toggle(owner, name string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.byID[id(owner, name)]
	if !ok {
		return false
	}
	if sp.Enabled == enabled {
		return true
	}
	sp.Enabled = enabled
	if enabled {
		heap.Push(&s.pending, sp)
	} else if sp.index >= 0 && sp.index < len(s.pending) {
		heap.Remove(&s.pending, sp.index)
	}
	s.notify()
	return true
}

// Get returns a copy of the named timer's spec, or nil.
func (s *Scheduler) Get(owner, name string) *Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.byID[id(owner, name)]
	if !ok {
		return nil
	}
	cp := *sp
	return &cp
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run is the tick loop: sleep until the earliest next-fire, fire
// everything due (catching up at most once per timer across a clock
// jump), reschedule, repeat, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		var sleepFor time.Duration
		if len(s.pending) == 0 {
			sleepFor = time.Hour
		} else {
			sleepFor = time.Until(s.pending[0].nextFire)
			if sleepFor < 0 {
				sleepFor = 0
			}
		}
		s.mu.Unlock()

		timerC := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timerC.Stop()
			return
		case <-timerC.C:
		case <-s.wake:
			timerC.Stop()
		}

		s.fireDue(ctx, time.Now())
	}
}

// fireDue fires every timer whose nextFire is <= now, at most once each
// even if multiple intervals have elapsed (a clock jump catches up by one
// fire, not N).
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.pending[0].nextFire.After(now) {
			s.mu.Unlock()
			return
		}
		sp := heap.Pop(&s.pending).(*Spec)
		s.mu.Unlock()

		sp.lastFire = now
		sp.raised++
		if sp.Log {
			logging.Debugf("timer", "firing %s (owner=%s)", sp.Name, sp.Owner)
		}

		if err := sp.Fn(ctx); err != nil {
			logging.Fault("timer", sp.Owner, sp.Name, err)
		}

		s.mu.Lock()
		if sp.OneShot {
			delete(s.byID, id(sp.Owner, sp.Name))
		} else {
			sp.nextFire = s.computeNext(now, sp)
			if sp.Enabled {
				heap.Push(&s.pending, sp)
			}
		}
		s.mu.Unlock()
	}
}

// nextTimeOfDay returns the next UTC wall-clock time matching anchor
// ("HHMM") strictly after from.
func nextTimeOfDay(from time.Time, anchor string) time.Time {
	if len(anchor) != 4 {
		return from.Add(24 * time.Hour)
	}
	hh := int(anchor[0]-'0')*10 + int(anchor[1]-'0')
	mm := int(anchor[2]-'0')*10 + int(anchor[3]-'0')

	from = from.UTC()
	candidate := time.Date(from.Year(), from.Month(), from.Day(), hh, mm, 0, 0, time.UTC)
	if !candidate.After(from) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}
