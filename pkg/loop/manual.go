package loop

import (
	"sort"
	"time"
)

// Manual denotes a deterministic scheduler driven by a virtual clock. Callbacks are
// executed on the calling goroutine, timers only fire upon Advance
type Manual struct {
	now     time.Time
	seq     uint64
	timers  []*manualTimer
	queue   []func()
	running bool
}

// NewManual instantiates a new Manual scheduler starting at the given time
func NewManual(start time.Time) *Manual {
	return &Manual{
		now: start,
	}
}

// Post executes fn immediately, or after the currently running callback returns
func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
	m.drain()
}

// Do executes fn like Post
func (m *Manual) Do(fn func()) {
	m.Post(fn)
}

// AfterFunc registers fn for execution once the virtual clock passes d
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{
		at:  m.now.Add(d),
		seq: m.seq,
		fn:  fn,
	}
	m.timers = append(m.timers, t)

	return t
}

// Now returns the virtual time
func (m *Manual) Now() time.Time {
	return m.now
}

// Advance moves the virtual clock forward, firing all due timers in order
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		if t.at.After(m.now) {
			m.now = t.at
		}
		t.stopped = true
		m.Post(t.fn)
	}
	m.now = target
}

// Pending returns the number of timers that have neither fired nor been stopped
func (m *Manual) Pending() (n int) {
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}

	return
}

////////////////////////////////////////////////////////////////////////////////

func (m *Manual) drain() {
	if m.running {
		return
	}

	m.running = true
	defer func() {
		m.running = false
	}()

	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	active := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			active = append(active, t)
		}
	}
	m.timers = active

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})

	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}

	return m.timers[0]
}

type manualTimer struct {
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() {
	t.stopped = true
}
