package scale

import (
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
)

// Watchdog denotes a bounded retry timer that detects the absence of data after
// subscribing to a scale
type Watchdog struct {
	timers     *Timers
	timeout    time.Duration
	maxRetries int

	onRetry     func(attempt int)
	onExhausted func()

	timer     loop.Timer
	retries   int
	fed       bool
	exhausted bool
}

// NewWatchdog instantiates a new watchdog. onRetry is invoked for each of the up to
// maxRetries attempts, onExhausted once all of them failed
func NewWatchdog(timers *Timers, timeout time.Duration, maxRetries int, onRetry func(attempt int), onExhausted func()) *Watchdog {
	return &Watchdog{
		timers:      timers,
		timeout:     timeout,
		maxRetries:  maxRetries,
		onRetry:     onRetry,
		onExhausted: onExhausted,
	}
}

// Arm (re-)starts the watchdog with a fresh retry budget
func (w *Watchdog) Arm() {
	w.retries = 0
	w.fed = false
	w.exhausted = false
	w.restart()
}

// Feed signals the arrival of data. It returns true on the first call after arming
func (w *Watchdog) Feed() bool {
	if w.fed {
		return false
	}

	w.fed = true
	w.Stop()

	return true
}

// Stop cancels a pending timeout
func (w *Watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Retries returns the number of retries performed since arming
func (w *Watchdog) Retries() int {
	return w.retries
}

// Exhausted returns if all retries failed
func (w *Watchdog) Exhausted() bool {
	return w.exhausted
}

////////////////////////////////////////////////////////////////////////////////

func (w *Watchdog) restart() {
	w.Stop()
	w.timer = w.timers.After(w.timeout, w.onTimeout)
}

func (w *Watchdog) onTimeout() {
	w.timer = nil
	if w.fed {
		return
	}

	if w.retries >= w.maxRetries {
		w.exhausted = true
		if w.onExhausted != nil {
			w.onExhausted()
		}
		return
	}

	w.retries++
	if w.onRetry != nil {
		w.onRetry(w.retries)
	}
	if !w.fed {
		w.restart()
	}
}
