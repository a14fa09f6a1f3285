package mock

import (
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/transport"
)

// Discoverer denotes a scripted advertisement source. Sightings and completion are
// injected by the test and delivered via the provided scheduler
type Discoverer struct {
	sched loop.Scheduler

	startErr error
	running  bool
	gen      int

	found    func(transport.Advertisement)
	finished func(err error)

	starts   int
	stops    int
	timeouts []time.Duration
}

// NewDiscoverer instantiates a new mock discoverer, executing functional options, if any
func NewDiscoverer(sched loop.Scheduler, options ...func(*Discoverer)) *Discoverer {
	d := &Discoverer{
		sched: sched,
	}
	for _, option := range options {
		option(d)
	}

	return d
}

// WithStartError makes every discovery attempt fail with the given error
func WithStartError(err error) func(*Discoverer) {
	return func(d *Discoverer) {
		d.startErr = err
	}
}

// StartDiscovery records the discovery cycle
func (d *Discoverer) StartDiscovery(timeout time.Duration, found func(transport.Advertisement), finished func(err error)) error {
	if d.startErr != nil {
		return d.startErr
	}
	if d.running {
		return transport.ErrDiscoveryRunning
	}

	d.gen++
	d.starts++
	d.timeouts = append(d.timeouts, timeout)
	d.running = true
	d.found, d.finished = found, finished

	return nil
}

// StopDiscovery aborts the running discovery cycle, reporting its completion
func (d *Discoverer) StopDiscovery() error {
	d.stops++
	if d.running {
		d.Finish(nil)
	}

	return nil
}

// Advertise simulates a sighting during the running discovery cycle
func (d *Discoverer) Advertise(adv transport.Advertisement) {
	if !d.running {
		return
	}

	found, gen := d.found, d.gen
	d.sched.Post(func() {
		if gen == d.gen {
			found(adv)
		}
	})
}

// Finish simulates the end of the running discovery cycle
func (d *Discoverer) Finish(err error) {
	if !d.running {
		return
	}

	d.running = false
	finished := d.finished
	d.sched.Post(func() {
		finished(err)
	})
}

// Running returns if a discovery cycle is active
func (d *Discoverer) Running() bool {
	return d.running
}

// Starts returns the number of started discovery cycles
func (d *Discoverer) Starts() int {
	return d.starts
}

// Stops returns the number of stop requests
func (d *Discoverer) Stops() int {
	return d.stops
}

// Timeouts returns the timeouts requested for all started cycles
func (d *Discoverer) Timeouts() []time.Duration {
	return d.timeouts
}
