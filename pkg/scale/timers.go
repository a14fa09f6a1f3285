package scale

import (
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
)

// Timers denotes the set of pending deferred callbacks of a single driver instance
type Timers struct {
	sched  loop.Scheduler
	active map[*timerHandle]struct{}
}

// NewTimers instantiates a new, empty timer set on the given scheduler
func NewTimers(sched loop.Scheduler) *Timers {
	return &Timers{
		sched:  sched,
		active: make(map[*timerHandle]struct{}),
	}
}

// After executes fn after d has elapsed, unless stopped before
func (t *Timers) After(d time.Duration, fn func()) loop.Timer {
	h := &timerHandle{set: t}
	h.timer = t.sched.AfterFunc(d, func() {
		delete(t.active, h)
		fn()
	})
	t.active[h] = struct{}{}

	return h
}

// StopAll cancels all pending callbacks
func (t *Timers) StopAll() {
	for h := range t.active {
		h.timer.Stop()
	}
	t.active = make(map[*timerHandle]struct{})
}

// Len returns the number of pending callbacks
func (t *Timers) Len() int {
	return len(t.active)
}

type timerHandle struct {
	set   *Timers
	timer loop.Timer
}

func (h *timerHandle) Stop() {
	h.timer.Stop()
	delete(h.set.active, h)
}
