package ircsock

import (
	"time"

	"github.com/benbjohnson/clock"
)

// timerSet tracks the timers a Connection owns. Callbacks are posted to the
// event loop and run there only if the timer is still in the set, so a timer
// that fires concurrently with stopAll is a no-op.
type timerSet struct {
	clock  clock.Clock
	post   func(func()) bool
	next   uint64
	active map[uint64]*clock.Timer
}

func newTimerSet(clk clock.Clock, post func(func()) bool) *timerSet {
	return &timerSet{
		clock:  clk,
		post:   post,
		active: make(map[uint64]*clock.Timer),
	}
}

// afterFunc schedules fn on the event loop after d. Must be called from the
// event loop.
func (s *timerSet) afterFunc(d time.Duration, fn func()) uint64 {
	s.next++
	id := s.next
	s.active[id] = s.clock.AfterFunc(d, func() {
		s.post(func() {
			if _, ok := s.active[id]; !ok {
				return
			}
			delete(s.active, id)
			fn()
		})
	})
	return id
}

func (s *timerSet) stopAll() {
	for id, t := range s.active {
		t.Stop()
		delete(s.active, id)
	}
}

func (s *timerSet) len() int {
	return len(s.active)
}
