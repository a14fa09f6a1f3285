// Package gattble implements the scale transport and device discovery on top of
// the native (HCI based) GATT stack provided by github.com/fako1024/gatt
package gattble

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/fako1024/gatt"
	"github.com/google/uuid"
)

// Stack denotes the local GATT device shared by all transports and the discoverer
type Stack struct {
	device gatt.Device
	sched  loop.Scheduler
	logger scale.Logger

	mu          sync.Mutex
	state       gatt.State
	scanning    bool
	peripherals map[string]gatt.Peripheral
	transports  map[string]*Transport
	cycle       *cycle
	cycleGen    int
}

type cycle struct {
	gen      int
	found    func(transport.Advertisement)
	finished func(err error)
	timer    loop.Timer
}

// New initializes the local GATT device, executing functional options, if any
func New(sched loop.Scheduler, options ...func(*Stack)) (*Stack, error) {
	s := &Stack{
		sched:       sched,
		logger:      &scale.NullLogger{},
		state:       gatt.StateUnknown,
		peripherals: make(map[string]gatt.Peripheral),
		transports:  make(map[string]*Transport),
	}
	for _, option := range options {
		option(s)
	}

	device, err := gatt.NewDevice(defaultBTClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bluetooth device: %w", err)
	}
	s.device = device

	s.device.Handle(
		gatt.AddPeripheralDiscovered(s.onPeriphDiscovered),
		gatt.AddPeripheralConnected(s.onPeriphConnected),
		gatt.AddPeripheralDisconnected(s.onPeriphDisconnected),
	)

	if err := s.device.Init(s.onStateChanged); err != nil {
		return nil, fmt.Errorf("failed to initialize bluetooth device: %w", err)
	}

	return s, nil
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Stack) {
	return func(s *Stack) {
		s.logger = logger
	}
}

// NewTransport instantiates a new transport on the stack
func (s *Stack) NewTransport() transport.Transport {
	return &Transport{
		stack:  s,
		sched:  s.sched,
		logger: s.logger,
	}
}

// StartDiscovery starts a time bounded discovery cycle
func (s *Stack) StartDiscovery(timeout time.Duration, found func(transport.Advertisement), finished func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := stateError(s.state); err != nil {
		return err
	}
	if s.cycle != nil {
		return transport.ErrDiscoveryRunning
	}

	s.cycleGen++
	c := &cycle{
		gen:      s.cycleGen,
		found:    found,
		finished: finished,
	}
	c.timer = s.sched.AfterFunc(timeout, func() {
		s.finishCycle(c.gen, nil)
	})
	s.cycle = c

	return s.updateScan()
}

// StopDiscovery aborts the running discovery cycle
func (s *Stack) StopDiscovery() error {
	s.mu.Lock()
	c := s.cycle
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	s.finishCycle(c.gen, nil)

	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (s *Stack) finishCycle(gen int, err error) {
	s.mu.Lock()
	c := s.cycle
	if c == nil || c.gen != gen {
		s.mu.Unlock()
		return
	}
	s.cycle = nil
	c.timer.Stop()
	if scanErr := s.updateScan(); scanErr != nil {
		s.logger.Warnf("failed to stop scanning: %s", scanErr)
	}
	s.mu.Unlock()

	s.sched.Post(func() {
		c.finished(err)
	})
}

// updateScan starts / stops scanning depending on whether a discovery cycle or
// a pending connection needs it. Must be called with the lock held
func (s *Stack) updateScan() error {
	needed := s.cycle != nil
	for _, t := range s.transports {
		if t.pending() {
			needed = true
			break
		}
	}

	if needed == s.scanning {
		return nil
	}
	s.scanning = needed

	// Scanning is (re-)enabled once the device is powered on
	if s.state != gatt.StatePoweredOn {
		return nil
	}
	if needed {
		return s.device.Scan([]gatt.UUID{}, false)
	}

	return s.device.StopScanning()
}

func (s *Stack) connect(t *Transport, l *link, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transports[address] = t
	if p, ok := s.peripherals[address]; ok {
		s.dial(t, l, p)
		return
	}

	// The peripheral has not been seen yet, it is connected once it advertises
	s.logger.Debugf("peripheral `%s` not seen yet, waiting for advertisement", address)
	if err := s.updateScan(); err != nil {
		t.fail(l, fmt.Sprintf("failed to start scanning: %s", err))
	}
}

func (s *Stack) cancel(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.transports, address)
	if err := s.updateScan(); err != nil {
		s.logger.Warnf("failed to update scanning: %s", err)
	}
}

// dial initiates the connection to a peripheral. Must be called with the lock held
func (s *Stack) dial(t *Transport, l *link, p gatt.Peripheral) {
	t.setDialing(l)
	if err := s.updateScan(); err != nil {
		s.logger.Warnf("failed to update scanning: %s", err)
	}

	go func() {
		s.logger.Debugf("connecting device `%s/%s`", p.Name(), p.ID())
		if err := s.device.Connect(p); err != nil {
			t.fail(l, fmt.Sprintf("failed to connect device `%s`: %s", p.ID(), err))
		}
	}()
}

func (s *Stack) onStateChanged(_ gatt.Device, state gatt.State) {
	s.mu.Lock()
	s.state = state
	c := s.cycle
	if state == gatt.StatePoweredOn && s.scanning {
		if err := s.device.Scan([]gatt.UUID{}, false); err != nil {
			s.logger.Warnf("failed to re-enable scanning: %s", err)
		}
	}
	s.mu.Unlock()

	s.logger.Debugf("bluetooth device state changed to %s", state)
	if err := stateError(state); err != nil && c != nil {
		s.finishCycle(c.gen, err)
	}
}

func (s *Stack) onPeriphDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	address := transport.NormalizeAddress(p.ID())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.peripherals[address] = p
	if t, ok := s.transports[address]; ok && t.pending() {
		s.dial(t, t.current(), p)
	}

	if c := s.cycle; c != nil {
		adv := transport.Advertisement{
			Address: address,
			Name:    p.Name(),
			RSSI:    rssi,
		}
		if a != nil {
			if a.LocalName != "" {
				adv.Name = a.LocalName
			}
			for _, u := range a.Services {
				if id, err := fromGatt(u); err == nil {
					adv.Services = append(adv.Services, id)
				}
			}
		}

		s.sched.Post(func() {
			s.mu.Lock()
			current := s.cycle == c
			s.mu.Unlock()
			if current {
				c.found(adv)
			}
		})
	}
}

func (s *Stack) onPeriphConnected(p gatt.Peripheral, err error) {
	t := s.lookup(p)
	if t == nil {
		return
	}
	if err != nil {
		t.fail(t.current(), fmt.Sprintf("failed to connect device `%s`: %s", p.ID(), err))
		return
	}

	s.logger.Debugf("connected device `%s/%s`", p.Name(), p.ID())
	t.attach(p)
}

func (s *Stack) onPeriphDisconnected(p gatt.Peripheral, _ error) {
	address := transport.NormalizeAddress(p.ID())

	t := s.lookup(p)

	s.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())
	if t == nil || !t.detach(p) {
		return
	}

	s.mu.Lock()
	if s.transports[address] == t {
		delete(s.transports, address)
	}
	s.mu.Unlock()
}

func (s *Stack) lookup(p gatt.Peripheral) *Transport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transports[transport.NormalizeAddress(p.ID())]
}

func stateError(state gatt.State) error {
	switch state {
	case gatt.StatePoweredOn, gatt.StateUnknown:
		return nil
	case gatt.StatePoweredOff, gatt.StateResetting:
		return transport.ErrPoweredOff
	case gatt.StateUnsupported:
		return transport.ErrUnsupportedPlatform
	case gatt.StateUnauthorized:
		return transport.ErrInvalidAdapter
	}

	return transport.ErrIO
}

func toGatt(u uuid.UUID) gatt.UUID {
	if id, ok := transport.ShortUUID(u); ok {
		return gatt.UUID16(id)
	}

	return gatt.MustParseUUID(strings.ReplaceAll(u.String(), "-", ""))
}

func fromGatt(u gatt.UUID) (uuid.UUID, error) {
	return transport.ParseUUID(u.String())
}
