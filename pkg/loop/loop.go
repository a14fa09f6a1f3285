// Package loop provides the single control thread all transport callbacks,
// notification decoding and timer firings are executed on
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultQueueSize = 256

// Scheduler denotes a serialized executor with cancelable deferred callbacks
type Scheduler interface {

	// Post enqueues fn for execution on the control thread
	Post(fn func())

	// AfterFunc executes fn on the control thread after d has elapsed
	AfterFunc(d time.Duration, fn func()) Timer

	// Now returns the current time as seen by the scheduler
	Now() time.Time
}

// Executor denotes a scheduler that can run a function synchronously
type Executor interface {
	Scheduler

	// Do executes fn on the control thread and waits for it to complete
	Do(fn func())
}

// Timer denotes a pending deferred callback
type Timer interface {

	// Stop cancels the callback. When called from the control thread the callback
	// is guaranteed not to run afterwards
	Stop()
}

// Loop denotes a goroutine-backed control thread
type Loop struct {
	queue chan func()
	done  chan struct{}

	// Callbacks posted while the queue was full, in order
	overflow []func()
	mu       sync.Mutex

	closeOnce sync.Once
}

// New instantiates a new Loop, executing functional options, if any
func New(options ...func(*Loop)) *Loop {
	l := &Loop{
		done: make(chan struct{}),
	}

	for _, option := range options {
		option(l)
	}
	if l.queue == nil {
		l.queue = make(chan func(), defaultQueueSize)
	}

	return l
}

// WithQueueSize sets the capacity of the callback queue
func WithQueueSize(n int) func(*Loop) {
	return func(l *Loop) {
		l.queue = make(chan func(), n)
	}
}

// Run executes queued callbacks until the context is canceled or the loop is closed
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.queue:
			fn()
			l.refill()
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close terminates the loop. Callbacks posted afterwards are discarded
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// Post enqueues fn for execution on the control thread. It never blocks, so it
// is safe to call from the control thread itself even if the queue is full
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.overflow) == 0 {
		select {
		case l.queue <- fn:
			return
		default:
		}
	}
	l.overflow = append(l.overflow, fn)
}

// Do executes fn on the control thread and waits for it to complete. It must not
// be called from the control thread itself
func (l *Loop) Do(fn func()) {
	doneChan := make(chan struct{})
	l.Post(func() {
		defer close(doneChan)
		fn()
	})

	select {
	case <-doneChan:
	case <-l.done:
	}
}

// refill moves overflowed callbacks to the queue as far as capacity permits
func (l *Loop) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.overflow) > 0 {
		select {
		case l.queue <- l.overflow[0]:
			l.overflow[0] = nil
			l.overflow = l.overflow[1:]
		default:
			return
		}
	}
}

// AfterFunc executes fn on the control thread after d has elapsed
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := new(loopTimer)
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			fn()
		})
	})

	return t
}

// Now returns the wall clock time
func (l *Loop) Now() time.Time {
	return time.Now()
}

////////////////////////////////////////////////////////////////////////////////

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() {
	t.stopped.Store(true)
	t.timer.Stop()
}
