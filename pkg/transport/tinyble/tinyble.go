// Package tinyble implements the scale transport and device discovery on top of
// tinygo.org/x/bluetooth (BlueZ via D-Bus on Linux, CoreBluetooth, WinRT)
package tinyble

import (
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// Adapter denotes the local bluetooth adapter shared by all transports and the discoverer
type Adapter struct {
	adapter *bluetooth.Adapter
	sched   loop.Scheduler
	logger  scale.Logger

	serviceFilter []uuid.UUID

	enableOnce sync.Once
	enableErr  error

	mu        sync.Mutex
	addresses map[string]bluetooth.Address
	cycle     *cycle
	cycleGen  int
}

type cycle struct {
	gen      int
	found    func(transport.Advertisement)
	finished func(err error)
	timer    loop.Timer
	stopped  bool
}

// New instantiates a new Adapter on the default bluetooth adapter, executing
// functional options, if any
func New(sched loop.Scheduler, options ...func(*Adapter)) *Adapter {
	a := &Adapter{
		adapter:   bluetooth.DefaultAdapter,
		sched:     sched,
		logger:    &scale.NullLogger{},
		addresses: make(map[string]bluetooth.Address),
	}
	for _, option := range options {
		option(a)
	}

	return a
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Adapter) {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithServiceFilter sets the services looked for in advertisements. Only these are
// reported in transport.Advertisement.Services
func WithServiceFilter(services ...uuid.UUID) func(*Adapter) {
	return func(a *Adapter) {
		a.serviceFilter = services
	}
}

// NewTransport instantiates a new transport on the adapter
func (a *Adapter) NewTransport() transport.Transport {
	return &Transport{
		adapter: a,
		sched:   a.sched,
		logger:  a.logger,
	}
}

// StartDiscovery starts a time bounded discovery cycle
func (a *Adapter) StartDiscovery(timeout time.Duration, found func(transport.Advertisement), finished func(err error)) error {
	if err := a.enable(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.cycle != nil {
		a.mu.Unlock()
		return transport.ErrDiscoveryRunning
	}
	a.cycleGen++
	c := &cycle{
		gen:      a.cycleGen,
		found:    found,
		finished: finished,
	}
	a.cycle = c
	a.mu.Unlock()

	filter := make([]bluetooth.UUID, 0, len(a.serviceFilter))
	for _, u := range a.serviceFilter {
		filter = append(filter, toBluetooth(u))
	}

	c.timer = a.sched.AfterFunc(timeout, func() {
		a.stopScan(c)
	})

	go func() {
		err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			a.onScanResult(c, result, filter)
		})
		if err != nil {
			err = fmt.Errorf("%w: %s", transport.ErrIO, err)
		}
		a.finishCycle(c, err)
	}()

	return nil
}

// StopDiscovery aborts the running discovery cycle
func (a *Adapter) StopDiscovery() error {
	a.mu.Lock()
	c := a.cycle
	a.mu.Unlock()

	if c == nil {
		return nil
	}

	return a.stopScan(c)
}

////////////////////////////////////////////////////////////////////////////////

func (a *Adapter) enable() error {
	a.enableOnce.Do(func() {
		if err := a.adapter.Enable(); err != nil {
			a.enableErr = fmt.Errorf("%w: %s", transport.ErrInvalidAdapter, err)
		}
	})

	return a.enableErr
}

func (a *Adapter) stopScan(c *cycle) error {
	a.mu.Lock()
	if a.cycle != c || c.stopped {
		a.mu.Unlock()
		return nil
	}
	c.stopped = true
	a.mu.Unlock()

	if err := a.adapter.StopScan(); err != nil {
		return fmt.Errorf("failed to stop scanning: %w", err)
	}

	return nil
}

func (a *Adapter) finishCycle(c *cycle, err error) {
	a.mu.Lock()
	if a.cycle != c {
		a.mu.Unlock()
		return
	}
	a.cycle = nil
	a.mu.Unlock()

	c.timer.Stop()
	a.sched.Post(func() {
		c.finished(err)
	})
}

func (a *Adapter) onScanResult(c *cycle, result bluetooth.ScanResult, filter []bluetooth.UUID) {
	address := transport.NormalizeAddress(result.Address.String())

	adv := transport.Advertisement{
		Address: address,
		Name:    result.LocalName(),
		RSSI:    int(result.RSSI),
	}
	for i, u := range filter {
		if result.HasServiceUUID(u) {
			adv.Services = append(adv.Services, a.serviceFilter[i])
		}
	}

	a.mu.Lock()
	a.addresses[address] = result.Address
	a.mu.Unlock()

	a.sched.Post(func() {
		a.mu.Lock()
		current := a.cycle == c
		a.mu.Unlock()
		if current {
			c.found(adv)
		}
	})
}

func (a *Adapter) resolve(address string) (bluetooth.Address, error) {
	a.mu.Lock()
	addr, ok := a.addresses[address]
	a.mu.Unlock()
	if ok {
		return addr, nil
	}

	return parseAddress(address)
}

func toBluetooth(u uuid.UUID) bluetooth.UUID {
	return bluetooth.NewUUID(u)
}

func fromBluetooth(u bluetooth.UUID) uuid.UUID {
	return uuid.UUID(u.Bytes())
}
